package main

import (
	"bytes"
	goimage "image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"mvs-depth/internal/depthio"
	"mvs-depth/internal/project"
	"mvs-depth/internal/sgm"
	"mvs-depth/internal/synth"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadParams_Precedence(t *testing.T) {
	dir := t.TempDir()
	projPath := filepath.Join(dir, "p.yaml")
	proj := project.New("p")

	p, err := loadParams(proj, projPath, "")
	require.NoError(t, err)
	assert.Equal(t, sgm.DefaultParams(), p)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "proj.yaml"), []byte("p1: 7\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cli.yaml"), []byte("p1: 9\n"), 0644))
	proj.ParamsPath = "proj.yaml"

	p, err = loadParams(proj, projPath, "")
	require.NoError(t, err)
	assert.Equal(t, 7, p.P1)

	p, err = loadParams(proj, projPath, filepath.Join(dir, "cli.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 9, p.P1)
}

func TestRunCommand_SyntheticPlane(t *testing.T) {
	dir := t.TempDir()
	scene := synth.NewScene(2)
	cams, err := scene.Rig(3, 0.1, 400, 64, 48)
	require.NoError(t, err)
	projPath, err := scene.WriteProject(dir, "plane", cams, 4)
	require.NoError(t, err)

	cfg := filepath.Join(dir, "sgm.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
do_refine: false
do_refine_rc: false
min_depth: 1
max_depth: 4
rc_depths_comp_step: 1
`), 0644))

	out := filepath.Join(dir, "out")
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{"run", "--project", projPath, "--view", "0", "--config", cfg, "--out", out, "--log-level", "warn"})
	require.NoError(t, rootCmd.Execute())

	layout := depthio.NewLayout(out, "SGM", "_tmp")
	m, err := layout.ReadMap(0, 1, 1, depthio.StageSGM)
	require.NoError(t, err)
	assert.Equal(t, 64, m.Width)
	assert.Equal(t, 48, m.Height)

	tcs, err := depthio.ReadInts(layout.Tcams(0))
	require.NoError(t, err)
	assert.NotEmpty(t, tcs)
	assert.NotContains(t, tcs, 0)

	_, err = os.Stat(layout.IDMap(0, 1, 1))
	assert.NoError(t, err)
}

func TestSelectTargets_Overlap(t *testing.T) {
	proj := project.New("overlap")
	k := [9]float64{100, 0, 50, 0, 100, 50, 0, 0, 1}
	r := [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	for id, x := range []float64{0, 0.5, 1.5} {
		proj.Views = append(proj.Views, project.View{ID: id, Width: 101, Height: 101, K: k, R: r, C: [3]float64{x}})
	}
	rig, err := proj.Rig()
	require.NoError(t, err)
	j := &job{proj: proj, rig: rig, log: zerolog.Nop()}

	defer func(n int, a, o float64) { numTargets, maxAngle, minOverlap = n, a, o }(numTargets, maxAngle, minOverlap)
	numTargets, maxAngle, minOverlap = 4, 45, 0.5

	// Without seeds the overlap is unknown and only the angle applies.
	assert.Equal(t, []int{1, 2}, j.selectTargets(0))

	// At depth 2 the footprints cover 75 and 25 percent of the targets.
	proj.Seeds = []project.Seed{{Position: [3]float64{0, 0, 2}, Views: []int{0, 1, 2}}}
	assert.Equal(t, []int{1}, j.selectTargets(0))

	minOverlap = 0.2
	assert.Equal(t, []int{1, 2}, j.selectTargets(0))
	numTargets = 1
	assert.Equal(t, []int{1}, j.selectTargets(0))
}

func TestJobTargets_DropsReference(t *testing.T) {
	j := &job{}
	assert.Equal(t, []int{0, 2}, j.targets(1, []int{0, 1, 2}))
	assert.Equal(t, []int{1, 2}, j.targets(0, []int{1, 2}))
	assert.Empty(t, j.targets(3, []int{3}))
}

func TestRunCommand_TargetsIncludeReference(t *testing.T) {
	dir := t.TempDir()
	scene := synth.NewScene(2)
	cams, err := scene.Rig(2, 0.1, 400, 32, 24)
	require.NoError(t, err)
	projPath, err := scene.WriteProject(dir, "pair", cams, 4)
	require.NoError(t, err)

	cfg := filepath.Join(dir, "sgm.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
do_refine: false
do_refine_rc: false
min_depth: 1
max_depth: 4
min_num_of_consistent_cams: 1
`), 0644))

	// Every view is a reference and the listed targets contain both of them.
	out := filepath.Join(dir, "out")
	rootCmd.SetArgs([]string{"run", "--project", projPath, "--view", "0,1", "--targets", "0,1",
		"--config", cfg, "--out", out, "--log-level", "warn"})
	defer func() { viewIDs, targetIDs = nil, nil }()
	require.NoError(t, rootCmd.Execute())

	layout := depthio.NewLayout(out, "SGM", "_tmp")
	for rc, want := range map[int]int{0: 1, 1: 0} {
		tcs, err := depthio.ReadInts(layout.Tcams(rc))
		require.NoError(t, err)
		assert.Equal(t, []int{want}, tcs)
	}
}

func TestJobSilhouette(t *testing.T) {
	dir := t.TempDir()
	img := goimage.NewNRGBA(goimage.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.White)
		}
	}
	img.Set(1, 2, color.RGBA{G: 255, A: 255})
	file, err := os.Create(filepath.Join(dir, "v0.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(file, img))
	require.NoError(t, file.Close())

	proj := project.New("mask")
	proj.Views = []project.View{{ID: 0, ImagePath: "v0.png", Width: 4, Height: 3}}
	params := sgm.DefaultParams()
	params.UseSilhouetteMaskCodedByColor = true
	params.SilhouetteMaskColor = [3]int{0, 255, 0}
	j := &job{proj: proj, projPath: filepath.Join(dir, "mask.yaml"), params: params}

	mask, err := j.silhouette(0)
	require.NoError(t, err)
	assert.Equal(t, 1, mask.Count())
	assert.True(t, mask.Masked(1, 2))

	_, err = j.silhouette(5)
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, stdout.String(), "mvsdepth")
}
