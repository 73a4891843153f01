// Command streamcored runs the stream-core server: an RTMP ingest
// listener, one stream actor per live publish, HLS packaging of each
// actor's fan-out, and a control-plane HTTP API, wired from
// viper-driven config into a registry.Registry of stream.Actor.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"streamcore/internal/auth"
	"streamcore/internal/config"
	rtmpflavor "streamcore/internal/flavor/rtmp"
	"streamcore/internal/httpapi"
	"streamcore/internal/metrics"
	"streamcore/internal/registry"
	"streamcore/internal/segmenter"
	"streamcore/internal/storage"
	"streamcore/internal/stream"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to ./config.yaml)")
	flag.Parse()

	log.Println("starting streamcored...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	backing, err := newStorageBackend(cfg.Storage)
	if err != nil {
		log.Fatalf("initializing storage: %v", err)
	}
	log.Printf("storage backend: %s", cfg.Storage.Backend)

	m := metrics.New()
	hooks := metrics.StreamHooks{M: m}

	reg := registry.New()
	authMgr := auth.New()
	seg := segmenter.New(backing, cfg.HLS.SegmentDuration, cfg.HLS.MaxSegments, m)

	actorOpts := stream.Options{
		GlueDeltaMS:       cfg.Stream.GlueDeltaMS,
		SourceTimeout:     stream.SourceTimeoutAfter(cfg.Stream.SourceTimeout),
		ClientsTimeout:    cfg.Stream.ClientsTimeout,
		RetryLimit:        cfg.Stream.RetryLimit,
		InactivityTimeout: cfg.Stream.InactivityTimeout,
		StopWaitForConfig: cfg.Stream.StopWaitForConfig,
		GCHintInterval:    cfg.Stream.GCHintInterval,
		Timeshift:         time.Duration(cfg.Stream.TimeshiftMS) * time.Millisecond,
		TimeshiftFactory:  func(window time.Duration) stream.Storage { return storage.NewTimeshift(window) },
		Hooks:             hooks,
	}

	onSpawn := func(a *stream.Actor, name string) {
		if err := seg.Start(a, name); err != nil {
			log.Printf("segmenter: failed to start for %q: %v", name, err)
		}
	}

	flavorFactory := func() rtmpflavor.Flavor {
		return rtmpflavor.Flavor{}
	}

	rtmpSrv := rtmpflavor.New(cfg.RTMP.Addr, reg, authMgr, m, actorOpts, flavorFactory, onSpawn)
	go func() {
		if err := rtmpSrv.ListenAndServe(); err != nil {
			log.Fatalf("rtmp server stopped: %v", err)
		}
	}()

	httpSrv := httpapi.New(reg, authMgr, seg, m, cfg.RTMP.PublicAddr)

	log.Println("---")
	log.Printf("control plane: %s", cfg.Server.Addr)
	log.Printf("rtmp ingest:   %s", cfg.RTMP.Addr)
	log.Println("---")

	if err := httpSrv.Run(cfg.Server.Addr); err != nil {
		log.Fatalf("http server stopped: %v", err)
	}
}

func newStorageBackend(cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Backend {
	case "gcs":
		return storage.NewGCSStorage(context.Background(), cfg.GCSProjectID, cfg.GCSBucketName, cfg.GCSBaseDir)
	default:
		return storage.NewLocalStorage(cfg.LocalDir)
	}
}
