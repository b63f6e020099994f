// Command synthscene renders a textured plane from a row of cameras and writes a
// project that mvsdepth can run on.
package main

import (
	"flag"
	"fmt"
	"os"

	"mvs-depth/internal/synth"
)

func main() {
	outDir := flag.String("out", "", "Output folder for images and project")
	name := flag.String("name", "plane", "Project name")
	views := flag.Int("views", 3, "Number of cameras")
	baseline := flag.Float64("baseline", 0.1, "Distance between neighbouring cameras")
	focal := flag.Float64("focal", 400, "Focal length in pixels")
	width := flag.Int("width", 320, "Image width")
	height := flag.Int("height", 240, "Image height")
	depth := flag.Float64("depth", 2, "Depth of the plane")
	seeds := flag.Int("seeds", 8, "Seed grid size per side (0 for no seeds)")
	flag.Parse()

	if *outDir == "" || *views < 2 {
		fmt.Println("Usage: synthscene -out <dir> [-views 3] [-baseline 0.1] [-focal 400] [-width 320] [-height 240] [-depth 2] [-seeds 8]")
		os.Exit(1)
	}

	scene := synth.NewScene(*depth)
	cams, err := scene.Rig(*views, *baseline, *focal, *width, *height)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build cameras: %v\n", err)
		os.Exit(1)
	}

	path, err := scene.WriteProject(*outDir, *name, cams, *seeds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write scene: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Rendered %d views of a plane at depth %.2f (%dx%d, f=%.0f)\n",
		*views, *depth, *width, *height, *focal)
	fmt.Printf("Project: %s\n", path)
	fmt.Printf("Run: mvsdepth run --project %s\n", path)
}
