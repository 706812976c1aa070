package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"

	"voxelworld.ai/internal/sim/bootstrap"
	"voxelworld.ai/internal/transport/observer"
)

func newMux(rt *bootstrap.Runtime, obs *observer.Server, logger *log.Logger) *http.ServeMux {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	w := rt.World
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		stats := rt.Cache.Stats()
		fmt.Fprintf(rw, "# HELP voxelworld_cache_entries Entries held in memory per kind.\n")
		fmt.Fprintf(rw, "# TYPE voxelworld_cache_entries gauge\n")
		for _, s := range stats {
			fmt.Fprintf(rw, "voxelworld_cache_entries{kind=%q} %d\n", s.Kind, s.Size)
		}
		fmt.Fprintf(rw, "# HELP voxelworld_cache_dirty Entries not yet written to storage.\n")
		fmt.Fprintf(rw, "# TYPE voxelworld_cache_dirty gauge\n")
		for _, s := range stats {
			fmt.Fprintf(rw, "voxelworld_cache_dirty{kind=%q} %d\n", s.Kind, s.Dirty)
		}
		fmt.Fprintf(rw, "# HELP voxelworld_cache_hits_total Cache lookups served from memory.\n")
		fmt.Fprintf(rw, "# TYPE voxelworld_cache_hits_total counter\n")
		for _, s := range stats {
			fmt.Fprintf(rw, "voxelworld_cache_hits_total{kind=%q} %d\n", s.Kind, s.Hits)
		}
		fmt.Fprintf(rw, "# HELP voxelworld_cache_misses_total Cache lookups that went to storage.\n")
		fmt.Fprintf(rw, "# TYPE voxelworld_cache_misses_total counter\n")
		for _, s := range stats {
			fmt.Fprintf(rw, "voxelworld_cache_misses_total{kind=%q} %d\n", s.Kind, s.Misses)
		}

		fmt.Fprintf(rw, "# HELP voxelworld_observers Connected observer clients.\n")
		fmt.Fprintf(rw, "# TYPE voxelworld_observers gauge\n")
		fmt.Fprintf(rw, "voxelworld_observers %d\n", obs.Clients())

		fmt.Fprintf(rw, "# HELP voxelworld_phases Terrain generation phases.\n")
		fmt.Fprintf(rw, "# TYPE voxelworld_phases gauge\n")
		fmt.Fprintf(rw, "voxelworld_phases %d\n", w.Phases())
	})

	mux.HandleFunc("/v1/bootstrap", obs.BootstrapHandler())
	mux.HandleFunc("/v1/observer", obs.WSHandler())

	// Local-only admin endpoints.
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			Seed      int64  `json:"seed"`
			Phases    int    `json:"phases"`
			Region    int    `json:"region"`
			Backend   string `json:"backend"`
			Observers int    `json:"observers"`
			Cache     []any  `json:"cache"`
		}{
			Seed:      w.Seed(),
			Phases:    w.Phases(),
			Region:    len(w.Region()),
			Backend:   rt.Config.Storage.Backend,
			Observers: obs.Clients(),
		}
		for _, s := range rt.Cache.Stats() {
			resp.Cache = append(resp.Cache, map[string]any{
				"kind": s.Kind.String(), "size": s.Size, "dirty": s.Dirty, "hits": s.Hits, "misses": s.Misses,
			})
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.HandleFunc("/admin/v1/flush", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		if err := w.Cleanup(); err != nil {
			logger.Printf("admin flush: %v", err)
			rw.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true})
	})

	if envBool("VW_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (VW_ENABLE_PPROF_HTTP=false)")
	}
	return mux
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
