package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	persistlog "voxelworld.ai/internal/persistence/log"
	"voxelworld.ai/internal/persistence/objstore"
	"voxelworld.ai/internal/sim/bootstrap"
	"voxelworld.ai/internal/sim/tuning"
	"voxelworld.ai/internal/sim/world"
	"voxelworld.ai/internal/transport/observer"
	"voxelworld.ai/internal/voxel"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/world.yaml", "world config path")
		addr       = flag.String("addr", "", "http listen address (default: server.addr from config)")
		workers    = flag.Int("workers", 0, "request workers (default: world.workers from config)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	worldLogger := log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := tuning.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if strings.TrimSpace(*addr) != "" {
		cfg.Server.Addr = *addr
	}
	if *workers > 0 {
		cfg.World.Workers = *workers
	}

	ctx, cancel := signalContext()
	defer cancel()

	rt, err := bootstrap.Build(ctx, cfg, worldLogger)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	w := rt.World

	obs := observer.NewServer(w, logger, observer.Options{
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
		AllowEdits:        cfg.Server.AllowEdits,
	})

	hooks := world.Hooks{OnSurface: obs.NotifySurface}
	var audit *persistlog.AuditLogger
	var mirror *objstore.Mirror
	if cfg.Audit.Dir != "" {
		mats := rt.Materials
		audit = persistlog.NewAuditLogger(cfg.Audit.Dir, func(b voxel.Block) string { return mats.Get(b).Name })
		hooks.OnBlockChange = func(p voxel.WorldPos, old, cur voxel.Block) {
			if err := audit.WriteBlockChange(p, old, cur); err != nil {
				logger.Printf("audit: %v", err)
			}
		}
		logger.Printf("audit log in %s", cfg.Audit.Dir)
		if cfg.Audit.Mirror {
			mirror, err = auditMirror(ctx, cfg, logger)
			if err != nil {
				logger.Fatalf("audit mirror: %v", err)
			}
			audit.Writer().OnClose = mirror.Enqueue
		}
	}
	w.SetHooks(hooks)
	w.Start(cfg.World.Workers)

	go maintain(ctx, rt, audit, cfg.Cache, logger)
	go obs.Run(ctx, cfg.Server.HeightEvery)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newMux(rt, obs, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("ListenAndServe: %v", err)
	}

	obs.Close()
	if err := w.Stop(); err != nil {
		logger.Printf("stop workers: %v", err)
	}
	if audit != nil {
		if err := audit.Close(); err != nil {
			logger.Printf("audit close: %v", err)
		}
	}
	mirror.Close()
	if err := rt.Close(); err != nil {
		logger.Fatalf("final flush: %v", err)
	}
	logger.Printf("flushed, bye")
}

// maintain runs the cache upkeep: frequent clean-only trims and periodic
// full flushes.
func maintain(ctx context.Context, rt *bootstrap.Runtime, audit *persistlog.AuditLogger, spec tuning.CacheSpec, logger *log.Logger) {
	trim := time.NewTicker(spec.TrimEvery)
	defer trim.Stop()
	cleanup := time.NewTicker(spec.CleanupEvery)
	defer cleanup.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-trim.C:
			rt.World.TrimClean()
		case <-cleanup.C:
			if err := rt.World.Cleanup(); err != nil {
				logger.Printf("cleanup: %v", err)
			}
			if audit != nil {
				if err := audit.Flush(); err != nil {
					logger.Printf("audit flush: %v", err)
				}
			}
		}
	}
}

// auditMirror uploads closed audit segments to the configured MinIO bucket.
func auditMirror(ctx context.Context, cfg tuning.Config, logger *log.Logger) (*objstore.Mirror, error) {
	m := cfg.Storage.MinIO
	store, err := objstore.Dial(ctx, objstore.Options{
		Endpoint:  m.Endpoint,
		AccessKey: m.AccessKey,
		SecretKey: m.SecretKey,
		Bucket:    m.Bucket,
		Secure:    m.Secure,
		Timeout:   m.Timeout,
	})
	if err != nil {
		return nil, err
	}
	logger.Printf("mirroring audit segments to %s/%s", m.Bucket, path.Join(m.Prefix, "audit"))
	return objstore.NewMirror(store.PutFile, cfg.Audit.Dir, path.Join(m.Prefix, "audit"),
		objstore.MirrorOptions{Workers: cfg.Audit.MirrorWorkers}, logger), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
