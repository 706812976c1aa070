package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	persistlog "voxelworld.ai/internal/persistence/log"
	"voxelworld.ai/internal/sim/tuning"
)

type auditFilter struct {
	box      string
	min, max [3]int
	since    time.Time
}

func (f *auditFilter) register(fs *flag.FlagSet) {
	fs.StringVar(&f.box, "box", "", "block box x1,y1,z1:x2,y2,z2 (optional)")
	fs.Func("since", "only entries at or after this RFC 3339 time", func(s string) error {
		t, err := time.Parse(time.RFC3339, s)
		f.since = t
		return err
	})
}

func (f *auditFilter) parse() {
	if f.box == "" {
		return
	}
	var err error
	if f.min, f.max, err = parseBox(f.box); err != nil {
		fmt.Fprintln(os.Stderr, "bad -box:", err)
		os.Exit(2)
	}
}

func (f *auditFilter) match(c persistlog.BlockChange) bool {
	if c.Time.Before(f.since) {
		return false
	}
	return f.box == "" || within([3]int{c.X, c.Y, c.Z}, f.min, f.max)
}

// readAudit returns the matching entries of every audit file in dir, oldest
// first.
func readAudit(dir string, f *auditFilter) ([]persistlog.BlockChange, error) {
	files, err := persistlog.ListFiles(dir)
	if err != nil {
		return nil, err
	}
	var out []persistlog.BlockChange
	for _, path := range files {
		err := persistlog.ReadFile(path, func(c persistlog.BlockChange) error {
			if f.match(c) {
				out = append(out, c)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func auditDir(configPath, override string) string {
	if override != "" {
		return override
	}
	cfg, err := tuning.Load(configPath)
	if err != nil {
		fatal("load config", err)
	}
	if cfg.Audit.Dir == "" {
		fmt.Fprintln(os.Stderr, "audit log disabled in config; pass -dir")
		os.Exit(2)
	}
	return cfg.Audit.Dir
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	configPath := fs.String("config", "./configs/world.yaml", "world config path")
	dir := fs.String("dir", "", "audit directory (default: audit.dir from config)")
	var f auditFilter
	f.register(fs)
	_ = fs.Parse(args)
	f.parse()

	recs, err := readAudit(auditDir(*configPath, *dir), &f)
	if err != nil {
		fatal("read audit", err)
	}
	for _, c := range recs {
		fmt.Printf("%s %d,%d,%d %s(%d) -> %s(%d)\n", c.Time.Format(time.RFC3339), c.X, c.Y, c.Z, c.OldName, c.Old, c.NewName, c.New)
	}
	fmt.Printf("entries=%d\n", len(recs))
}

// rollbackCmd restores the old block of every matching change, newest
// first, so a block edited several times ends at its earliest value.
func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	configPath := fs.String("config", "./configs/world.yaml", "world config path")
	dir := fs.String("dir", "", "audit directory (default: audit.dir from config)")
	var f auditFilter
	f.register(fs)
	_ = fs.Parse(args)
	f.parse()
	if f.box == "" && f.since.IsZero() {
		fmt.Fprintln(os.Stderr, "rollback needs -box or -since")
		os.Exit(2)
	}

	recs, err := readAudit(auditDir(*configPath, *dir), &f)
	if err != nil {
		fatal("read audit", err)
	}
	if len(recs) == 0 {
		fmt.Println("no matching audit entries; nothing to rollback")
		return
	}
	slices.Reverse(recs)
	applied := apply(*configPath, recs, func(c persistlog.BlockChange) [2]uint16 { return [2]uint16{c.New, c.Old} })
	fmt.Printf("rollback ok: entries=%d applied=%d skipped=%d\n", len(recs), applied, len(recs)-applied)
}

// replayCmd applies every matching change again, oldest first, to a world
// built from the config; typically a fresh one restored from a snapshot.
func replayCmd(args []string) {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	configPath := fs.String("config", "./configs/world.yaml", "world config path")
	dir := fs.String("dir", "", "audit directory (required)")
	var f auditFilter
	f.register(fs)
	_ = fs.Parse(args)
	f.parse()
	if *dir == "" {
		fmt.Fprintln(os.Stderr, "missing -dir")
		os.Exit(2)
	}

	recs, err := readAudit(filepath.Clean(*dir), &f)
	if err != nil {
		fatal("read audit", err)
	}
	applied := apply(*configPath, recs, func(c persistlog.BlockChange) [2]uint16 { return [2]uint16{c.Old, c.New} })
	fmt.Printf("replay ok: entries=%d applied=%d skipped=%d\n", len(recs), applied, len(recs)-applied)
}

// apply sets each record's target block where the world still holds the
// expected one. step returns {expected, target}.
func apply(configPath string, recs []persistlog.BlockChange, step func(persistlog.BlockChange) [2]uint16) int {
	rt := openWorld(configPath, false)
	defer closeWorld(rt)

	applied := 0
	for _, c := range recs {
		s := step(c)
		p := worldPos([3]int{c.X, c.Y, c.Z})
		cur, err := rt.World.Block(p)
		if err != nil {
			fatal("read block", err)
		}
		if cur != s[0] {
			continue
		}
		if _, err := rt.World.ChangeBlock(p, s[1]); err != nil {
			fatal("change block", err)
		}
		applied++
	}
	return applied
}
