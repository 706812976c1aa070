package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"voxelworld.ai/internal/persistence/storage"
)

// counter is implemented by backends that can count their rows cheaply.
type counter interface {
	Count(kind storage.Kind) (int, error)
}

func statCmd(args []string) {
	fs := flag.NewFlagSet("stat", flag.ExitOnError)
	configPath := fs.String("config", "./configs/world.yaml", "world config path")
	_ = fs.Parse(args)

	rt := openWorld(*configPath, false)
	defer closeWorld(rt)

	cfg := rt.Config
	fmt.Printf("seed=%d backend=%s codec=%s cache_limit=%d\n", cfg.World.Seed, cfg.Storage.Backend, cfg.Cache.Codec, rt.Cache.Limit())
	fmt.Printf("phases=%d region=%d materials=%d\n", rt.World.Phases(), len(rt.World.Region()), rt.Materials.Len())
	fmt.Printf("areas=%d terrain=%d light=%d\n", len(cfg.Areas), len(cfg.Terrain), len(cfg.Light))

	c, ok := rt.Storage.(counter)
	if !ok {
		fmt.Println("stored rows: not available for this backend")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tROWS")
	for _, k := range storage.Kinds {
		n, err := c.Count(k)
		if err != nil {
			fatal("count "+k.String(), err)
		}
		fmt.Fprintf(tw, "%s\t%d\n", k, n)
	}
	_ = tw.Flush()
}
