// Package depthio names and persists the per-view artifacts of a depth run.
package depthio

import (
	"fmt"
	"os"
	"path/filepath"
)

// Stage identifies which pass produced a map.
type Stage string

const (
	StageSGM         Stage = "SGM"
	StageRefinePhoto Stage = "refinePhoto"
	StageRefineOpt   Stage = "refineOpt"
)

// Ext returns the file extension maps of the stage are stored with.
func (s Stage) Ext() string {
	if s == StageSGM {
		return ".bin"
	}
	return ".exr"
}

// Layout maps artifacts to paths below an output folder.
type Layout struct {
	Dir    string
	TmpDir string
}

// NewLayout returns the layout of outDir/<outName> with its temporary folder.
func NewLayout(outDir, outName, tmpName string) Layout {
	dir := filepath.Join(outDir, outName)
	return Layout{Dir: dir, TmpDir: filepath.Join(dir, tmpName)}
}

// Ensure creates the output folders.
func (l Layout) Ensure() error {
	if err := os.MkdirAll(l.TmpDir, 0755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}
	return nil
}

// DepthMap returns the depth map path of a view.
func (l Layout) DepthMap(view, scale, step int, stage Stage) string {
	return l.mapPath(view, "depthMap", scale, step, stage, stage.Ext())
}

// SimMap returns the similarity map path of a view.
func (l Layout) SimMap(view, scale, step int, stage Stage) string {
	return l.mapPath(view, "simMap", scale, step, stage, stage.Ext())
}

// IDMap returns the path of the best hypothesis index image of a view.
func (l Layout) IDMap(view, scale, step int) string {
	return l.mapPath(view, "idDepthMap", scale, step, StageSGM, ".png")
}

// Tcams returns the path of the target view list of a view.
func (l Layout) Tcams(view int) string {
	return filepath.Join(l.Dir, fmt.Sprintf("%d_tcams.bin", view))
}

// Depths returns the path of the hypothesis depths of a view.
func (l Layout) Depths(view int) string {
	return filepath.Join(l.Dir, fmt.Sprintf("%d_depths.bin", view))
}

// DepthsTxt returns the path of the text dump of the hypothesis depths.
func (l Layout) DepthsTxt(view int) string {
	return filepath.Join(l.TmpDir, fmt.Sprintf("%d_depths.txt", view))
}

// Preview returns the path of the depth preview image of a view.
func (l Layout) Preview(view, scale, step int, stage Stage) string {
	name := fmt.Sprintf("%d_depthMap_scale%d_step%d_%s.png", view, scale, step, stage)
	return filepath.Join(l.TmpDir, name)
}

func (l Layout) mapPath(view int, kind string, scale, step int, stage Stage, ext string) string {
	name := fmt.Sprintf("%d_%s_scale%d_step%d_%s%s", view, kind, scale, step, stage, ext)
	return filepath.Join(l.Dir, name)
}
