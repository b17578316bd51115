//go:build !(js && wasm)

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/depthify/depthify/config"
	"github.com/depthify/depthify/depth"
	"github.com/depthify/depthify/logging"
	"github.com/depthify/depthify/utils"
)

func usage() {
	fmt.Println("Usage: depthify <command> [args]")
	fmt.Println("Commands:")
	fmt.Println("  image2glb input.png output.glb [scale] [invert]   (depth image -> displaced mesh .glb, scale defaults to 10)")
	fmt.Println("  image2grid input.png output.dgrid                 (decode a depth image once into a .dgrid file)")
	fmt.Println("  grid2glb input.dgrid output.glb [scale] [invert]  (convert .dgrid -> .glb)")
	fmt.Println("  run config.toml                                   (decode, build, export .glb and render a preview)")
	fmt.Println("  watch config.toml                                 (like run, again every time the image changes)")
	fmt.Println("  render config.toml                                (like run, without writing the .glb)")
}

func fail(err error) {
	fmt.Println("Error:", err)
	os.Exit(1)
}

// meshArgs parses the optional [scale] [invert] arguments.
func meshArgs(args []string) (float64, bool, error) {
	scale, invert := config.Default().DepthScale, false
	if len(args) > 0 {
		if _, err := fmt.Sscan(args[0], &scale); err != nil {
			return 0, false, fmt.Errorf("bad scale %q: %w", args[0], err)
		}
	}
	if len(args) > 1 {
		if _, err := fmt.Sscan(args[1], &invert); err != nil {
			return 0, false, fmt.Errorf("bad invert flag %q: %w", args[1], err)
		}
	}
	return scale, invert, nil
}

func runConfig(path string, skipMesh, watch bool) error {
	s, err := config.Load(path)
	if err != nil {
		return err
	}
	logger := logging.New(logging.Options{Level: s.LogLevel})
	p := &utils.Pipeline{Settings: s, Logger: logger, SkipMesh: skipMesh}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !watch {
		_, err := p.Run(ctx, p.NewJob())
		return err
	}
	return utils.Watch(ctx, p, utils.DefaultDebounce, func(res utils.Result, err error) {
		if err != nil {
			// keep watching; the next save may fix it
			return
		}
		logger.Info("outputs updated", "mesh", res.MeshPath, "image", res.ImagePath)
	})
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "image2glb", "grid2glb":
		if len(os.Args) < 4 || len(os.Args) > 6 {
			usage()
			os.Exit(1)
		}
		scale, invert, err := meshArgs(os.Args[4:])
		if err != nil {
			fail(err)
		}
		run := utils.RunImage2GLB
		if os.Args[1] == "grid2glb" {
			run = utils.RunGrid2GLB
		}
		if err := run(os.Args[2], os.Args[3], scale, invert); err != nil {
			fail(err)
		}
	case "image2grid":
		if len(os.Args) != 4 {
			usage()
			os.Exit(1)
		}
		if err := utils.RunImage2Grid(os.Args[2], os.Args[3], depth.CompZstd); err != nil {
			fail(err)
		}
	case "run", "watch", "render":
		if len(os.Args) != 3 {
			usage()
			os.Exit(1)
		}
		if err := runConfig(os.Args[2], os.Args[1] == "render", os.Args[1] == "watch"); err != nil {
			fail(err)
		}
	default:
		usage()
		os.Exit(1)
	}

	fmt.Println("Operation completed!")
}
