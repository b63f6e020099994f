package depthio

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"strconv"
	"strings"

	"mvs-depth/internal/sgm"

	"github.com/rs/zerolog"
)

// InvalidIndex marks pixels without a pick in the index image.
const InvalidIndex = 0xFFFF

// Writer persists the artifacts of pipeline results.
type Writer struct {
	layout Layout
	params sgm.Params
	log    zerolog.Logger
}

// NewWriter creates a writer; the output folders are created on first write.
func NewWriter(layout Layout, params sgm.Params, log zerolog.Logger) *Writer {
	return &Writer{layout: layout, params: params, log: log}
}

// Write stores every map of res and, when hypotheses were computed, the target
// list and the hypothesis depths.
func (w *Writer) Write(res *sgm.Result) error {
	if err := w.layout.Ensure(); err != nil {
		return err
	}
	rc := res.Rc

	stages := []struct {
		stage Stage
		m     *sgm.DepthSimMap
	}{
		{StageSGM, res.SGM},
		{StageRefinePhoto, res.RefinePhoto},
		{StageRefineOpt, res.RefineOpt},
	}
	for _, s := range stages {
		if s.m == nil {
			continue
		}
		if err := w.WriteMap(s.m, s.stage); err != nil {
			return err
		}
		if w.params.VisualizeDepthMaps {
			if err := WritePreview(w.layout.Preview(rc, s.m.Scale, s.m.Step, s.stage), s.m); err != nil {
				return err
			}
		}
	}

	if res.BestIndex != nil {
		path := w.layout.IDMap(rc, res.SGM.Scale, res.SGM.Step)
		if err := WriteIndexMap(path, res.BestIndex); err != nil {
			return err
		}
	}
	if res.Hypotheses.Len() > 0 {
		if err := WriteInts(w.layout.Tcams(rc), res.Tcs); err != nil {
			return err
		}
		if err := WriteFloats(w.layout.Depths(rc), res.Hypotheses.Depths()); err != nil {
			return err
		}
		if w.params.SaveDepthsToSweepToTxtForVis {
			if err := WriteDepthsTxt(w.layout.DepthsTxt(rc), res.Hypotheses.Depths()); err != nil {
				return err
			}
		}
	}

	w.log.Info().
		Int("rc", rc).
		Str("dir", w.layout.Dir).
		Msg("depth maps written")
	return nil
}

// WriteMap stores the depth and similarity planes of m for a stage.
func (w *Writer) WriteMap(m *sgm.DepthSimMap, stage Stage) error {
	depth := make([]float32, len(m.Cells))
	sim := make([]float32, len(m.Cells))
	for i, c := range m.Cells {
		depth[i], sim[i] = c.Depth, c.Sim
	}

	write := WriteFloatMap
	if stage.Ext() == ".exr" {
		write = WriteEXR
	}
	if err := write(w.layout.DepthMap(m.Rc, m.Scale, m.Step, stage), m.Width, m.Height, depth); err != nil {
		return err
	}
	if err := write(w.layout.SimMap(m.Rc, m.Scale, m.Step, stage), m.Width, m.Height, sim); err != nil {
		return err
	}
	w.log.Debug().Int("rc", m.Rc).Str("stage", string(stage)).Int("valid", m.ValidCount()).Msg("map written")
	return nil
}

// ReadMap loads the depth and similarity planes of a view for a stage.
func (l Layout) ReadMap(view, scale, step int, stage Stage) (*sgm.DepthSimMap, error) {
	read := ReadFloatMap
	if stage.Ext() == ".exr" {
		read = ReadEXR
	}
	w, h, depth, err := read(l.DepthMap(view, scale, step, stage))
	if err != nil {
		return nil, err
	}
	sw, sh, sim, err := read(l.SimMap(view, scale, step, stage))
	if err != nil {
		return nil, err
	}
	if sw != w || sh != h {
		return nil, fmt.Errorf("depth map %dx%d and similarity map %dx%d of view %d differ", w, h, sw, sh, view)
	}

	m := sgm.NewDepthSimMap(view, w, h, scale, step)
	for i := range m.Cells {
		m.Cells[i] = sgm.DepthSim{Depth: depth[i], Sim: sim[i]}
	}
	return m, nil
}

// WriteIndexMap stores the best hypothesis indices as a 16-bit PNG.
func WriteIndexMap(path string, best *sgm.BestIndexMap) error {
	img := image.NewGray16(image.Rect(0, 0, best.Width, best.Height))
	for i, c := range best.Cells {
		v := uint16(InvalidIndex)
		if c.ID != sgm.NoHypothesis && c.ID < InvalidIndex {
			v = uint16(c.ID)
		}
		img.SetGray16(i%best.Width, i/best.Width, color.Gray16{Y: v})
	}

	return writePNG(path, img)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

// WritePreview stores an 8-bit image of the valid depths of m, near is bright and
// invalid pixels are black.
func WritePreview(path string, m *sgm.DepthSimMap) error {
	lo, hi := float32(math.MaxFloat32), float32(0)
	for _, c := range m.Cells {
		if c.Valid() {
			lo, hi = min(lo, c.Depth), max(hi, c.Depth)
		}
	}
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, c := range m.Cells {
		if !c.Valid() {
			continue
		}
		v := uint8(255)
		if hi > lo {
			v = uint8(255 - math.Round(float64((c.Depth-lo)/(hi-lo))*254))
		}
		img.SetGray(i%m.Width, i/m.Width, color.Gray{Y: v})
	}
	return writePNG(path, img)
}

// WriteDepthsTxt writes one depth per line for inspection.
func WriteDepthsTxt(path string, depths []float64) error {
	var b strings.Builder
	for _, d := range depths {
		b.WriteString(strconv.FormatFloat(d, 'g', -1, 64))
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}
