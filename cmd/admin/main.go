package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"voxelworld.ai/internal/persistence/snapshot"
	"voxelworld.ai/internal/sim/bootstrap"
	"voxelworld.ai/internal/sim/tuning"
	"voxelworld.ai/internal/voxel"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	args := os.Args[2:]
	switch os.Args[1] {
	case "export":
		exportCmd(args)
	case "import":
		importCmd(args)
	case "stat":
		statCmd(args)
	case "height":
		heightCmd(args)
	case "audit":
		auditCmd(args)
	case "rollback":
		rollbackCmd(args)
	case "replay":
		replayCmd(args)
	case "state":
		stateCmd(args)
	case "flush":
		flushCmd(args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: admin <export|import|stat|height|audit|rollback|replay|state|flush> [flags]")
	fmt.Fprintln(os.Stderr, "offline commands open the world storage directly; stop the server first")
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}

// openWorld builds the world described by the config file against its
// storage, the same way the server does.
func openWorld(configPath string, verbose bool) *bootstrap.Runtime {
	cfg, err := tuning.Load(configPath)
	if err != nil {
		fatal("load config", err)
	}
	var logger *log.Logger
	if verbose {
		logger = log.New(os.Stderr, "[admin] ", log.LstdFlags|log.Lmicroseconds)
	}
	rt, err := bootstrap.Build(context.Background(), cfg, logger)
	if err != nil {
		fatal("open world", err)
	}
	return rt
}

func closeWorld(rt *bootstrap.Runtime) {
	if err := rt.Close(); err != nil {
		fatal("flush", err)
	}
}

func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "./configs/world.yaml", "world config path")
	box := fs.String("box", "", "chunk box x1,y1,z1:x2,y2,z2 (required)")
	out := fs.String("out", "", "output .snap.zst path (required)")
	archive := fs.String("archive", "", "also copy the snapshot into <dir>/archives/<created>/")
	verbose := fs.Bool("v", false, "log world activity to stderr")
	_ = fs.Parse(args)

	if *box == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "missing -box or -out")
		os.Exit(2)
	}
	min, max, err := parseBox(*box)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -box:", err)
		os.Exit(2)
	}

	rt := openWorld(*configPath, *verbose)
	n, err := snapshot.Export(*out, rt.World, chunkPos(min), chunkPos(max))
	if err != nil {
		fatal("export", err)
	}
	closeWorld(rt)
	fmt.Printf("export ok: box=%s chunks=%d out=%s\n", *box, n, *out)
	if *archive != "" {
		dst, err := snapshot.Archive(*archive, *out)
		if err != nil {
			fatal("archive", err)
		}
		fmt.Printf("archived: %s\n", dst)
	}
}

func importCmd(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", "./configs/world.yaml", "world config path")
	in := fs.String("in", "", "snapshot path (required)")
	force := fs.Bool("force", false, "import even if the snapshot seed differs")
	verbose := fs.Bool("v", false, "log world activity to stderr")
	_ = fs.Parse(args)

	if *in == "" {
		fmt.Fprintln(os.Stderr, "missing -in")
		os.Exit(2)
	}
	rt := openWorld(*configPath, *verbose)
	if !*force {
		h, err := snapshot.Read(*in, nil)
		if err != nil {
			fatal("read snapshot", err)
		}
		if h.Seed != rt.World.Seed() {
			fmt.Fprintf(os.Stderr, "snapshot seed %d differs from world seed %d; use -force\n", h.Seed, rt.World.Seed())
			os.Exit(2)
		}
	}
	h, n, err := snapshot.Import(*in, rt.World)
	if err != nil {
		closeWorld(rt)
		fatal("import", err)
	}
	closeWorld(rt)
	fmt.Printf("import ok: seed=%d box=%v..%v chunks=%d\n", h.Seed, h.Min, h.Max, n)
}

func heightCmd(args []string) {
	fs := flag.NewFlagSet("height", flag.ExitOnError)
	configPath := fs.String("config", "./configs/world.yaml", "world config path")
	col := fs.String("col", "0,0", "chunk column x,y")
	radius := fs.Int("r", 0, "also print columns within this radius")
	_ = fs.Parse(args)

	v, err := parseInts(*col, 2)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -col:", err)
		os.Exit(2)
	}
	rt := openWorld(*configPath, false)
	defer closeWorld(rt)
	for y := v[1] - *radius; y <= v[1]+*radius; y++ {
		for x := v[0] - *radius; x <= v[0]+*radius; x++ {
			h, err := rt.World.CoarseHeight(voxel.MapPos{X: x, Y: y})
			if err != nil {
				fatal("height", err)
			}
			if !h.Defined() {
				fmt.Printf("%d,%d undefined\n", x, y)
				continue
			}
			fmt.Printf("%d,%d %d\n", x, y, h)
		}
	}
}

func chunkPos(v [3]int) voxel.ChunkPos { return voxel.ChunkPos{X: v[0], Y: v[1], Z: v[2]} }
func worldPos(v [3]int) voxel.WorldPos { return voxel.WorldPos{X: v[0], Y: v[1], Z: v[2]} }
func within(p, min, max [3]int) bool {
	return p[0] >= min[0] && p[0] <= max[0] &&
		p[1] >= min[1] && p[1] <= max[1] &&
		p[2] >= min[2] && p[2] <= max[2]
}

func parseBox(s string) (min, max [3]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1,z1:x2,y2,z2")
	}
	a, err := parseInts(parts[0], 3)
	if err != nil {
		return min, max, err
	}
	b, err := parseInts(parts[1], 3)
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 3; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseInts(s string, n int) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != n {
		return v, fmt.Errorf("expected %d comma separated integers", n)
	}
	for i := 0; i < n; i++ {
		x, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = x
	}
	return v, nil
}
