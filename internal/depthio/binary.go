package depthio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// WriteFloatMap writes a width x height float32 map: two little-endian int32 for
// the size followed by the row-major values.
func WriteFloatMap(path string, width, height int, values []float32) error {
	if len(values) != width*height {
		return fmt.Errorf("map %dx%d has %d values", width, height, len(values))
	}
	return writeFile(path, func(w io.Writer) error {
		if err := binary.Write(w, binary.LittleEndian, [2]int32{int32(width), int32(height)}); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, values)
	})
}

// ReadFloatMap reads a map written by WriteFloatMap.
func ReadFloatMap(path string) (width, height int, values []float32, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var size [2]int32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return 0, 0, nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	if size[0] < 0 || size[1] < 0 {
		return 0, 0, nil, fmt.Errorf("corrupt header in %s: %dx%d", path, size[0], size[1])
	}
	values = make([]float32, int(size[0])*int(size[1]))
	if err := binary.Read(r, binary.LittleEndian, values); err != nil {
		return 0, 0, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return int(size[0]), int(size[1]), values, nil
}

// WriteInts writes little-endian int32 values preceded by their count.
func WriteInts(path string, values []int) error {
	out := make([]int32, len(values))
	for i, v := range values {
		out[i] = int32(v)
	}
	return writeFile(path, func(w io.Writer) error {
		if err := binary.Write(w, binary.LittleEndian, int32(len(out))); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, out)
	})
}

// ReadInts reads values written by WriteInts.
func ReadInts(path string) ([]int, error) {
	var raw []int32
	if err := readCounted(path, &raw); err != nil {
		return nil, err
	}
	out := make([]int, len(raw))
	for i, v := range raw {
		out[i] = int(v)
	}
	return out, nil
}

// WriteFloats writes values as little-endian float32 preceded by their count.
func WriteFloats(path string, values []float64) error {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return writeFile(path, func(w io.Writer) error {
		if err := binary.Write(w, binary.LittleEndian, int32(len(out))); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, out)
	})
}

// ReadFloats reads values written by WriteFloats.
func ReadFloats(path string) ([]float64, error) {
	var raw []float32
	if err := readCounted(path, &raw); err != nil {
		return nil, err
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out, nil
}

func readCounted[T int32 | float32](path string, dst *[]T) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("failed to read count of %s: %w", path, err)
	}
	if n < 0 {
		return fmt.Errorf("corrupt count in %s: %d", path, n)
	}
	*dst = make([]T, n)
	if err := binary.Read(r, binary.LittleEndian, *dst); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

func writeFile(path string, fn func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := fn(w); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
