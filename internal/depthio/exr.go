package depthio

import (
	"fmt"

	"gocv.io/x/gocv"
)

// WriteEXR writes a single-channel float32 map through OpenCV. OpenCV builds that
// gate OpenEXR need OPENCV_IO_ENABLE_OPENEXR=1 in the environment.
func WriteEXR(path string, width, height int, values []float32) error {
	if len(values) != width*height {
		return fmt.Errorf("map %dx%d has %d values", width, height, len(values))
	}
	m := gocv.NewMatWithSize(height, width, gocv.MatTypeCV32FC1)
	defer m.Close()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			m.SetFloatAt(y, x, values[y*width+x])
		}
	}
	if !gocv.IMWrite(path, m) {
		return fmt.Errorf("failed to write %s", path)
	}
	return nil
}

// ReadEXR reads a single-channel float32 map written by WriteEXR.
func ReadEXR(path string) (width, height int, values []float32, err error) {
	m := gocv.IMRead(path, gocv.IMReadUnchanged)
	defer m.Close()
	if m.Empty() {
		return 0, 0, nil, fmt.Errorf("failed to read %s", path)
	}
	if m.Type() != gocv.MatTypeCV32FC1 {
		return 0, 0, nil, fmt.Errorf("%s is not a single-channel float map", path)
	}
	width, height = m.Cols(), m.Rows()
	values = make([]float32, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			values[y*width+x] = m.GetFloatAt(y, x)
		}
	}
	return width, height, values, nil
}
