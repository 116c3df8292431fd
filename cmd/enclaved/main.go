// Command enclaved runs a single Enclave node: it owns one durable
// store, one libp2p host, and one engine loop, and serves Prometheus
// metrics alongside them.
//
// There is no interactive surface here; a front end drives a node
// through the engine's Submit/Events API in-process. This binary
// exists so the node can also run headless, e.g. under a
// relay-adjacent always-on deployment.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/zai11/enclave/internal/config"
	"github.com/zai11/enclave/internal/engine"
	"github.com/zai11/enclave/internal/events"
	"github.com/zai11/enclave/internal/logging"
	"github.com/zai11/enclave/internal/metrics"
	"github.com/zai11/enclave/internal/store"
	"github.com/zai11/enclave/internal/swarm"
)

func main() {
	dbPath := flag.String("db", "enclave.db", "path to the node's SQLite store")
	port := flag.Int("port", 0, "TCP port to listen on (0 keeps the port persisted at first run)")
	metricsAddr := flag.String("metrics-addr", ":9090", "address to serve /metrics on")
	flag.Parse()

	log := logging.NewDefault()

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	cfg, err := config.LoadOrCreate(st)
	if err != nil {
		log.Fatal(err)
	}
	if *port != 0 {
		cfg.Port = *port
	}

	host, err := swarm.New(cfg.PrivateKey, cfg.Port, log)
	if err != nil {
		log.Fatal(err)
	}
	if bound, boundErr := host.BoundPort(); boundErr == nil && bound != cfg.Port {
		log.Infof("requested port %d was unavailable, bound %d instead", cfg.Port, bound)
		if err := config.PersistPort(st, bound); err != nil {
			log.Warnf("persist_bound_port: %v", err)
		}
		cfg.Port = bound
	}

	em := events.NewEmitter()
	loop, err := engine.New(host, st, em, log, cfg)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := host.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer host.Close()

	collectors := metrics.New()
	go consumeEvents(em, collectors, log)

	metricsServer := &http.Server{Addr: *metricsAddr, Handler: collectors.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warnf("metrics server: %v", err)
		}
	}()

	log.Infof("enclave node %s listening on port %d", cfg.PeerID, cfg.Port)
	loop.Run(ctx)

	_ = metricsServer.Close()
}

// consumeEvents is the event loop's one logical subscriber: it feeds
// Prometheus and logs every event, the way a UI layer would instead
// render them.
func consumeEvents(em *events.Emitter, collectors *metrics.Collectors, log logging.Logger) {
	for ev := range em.Events() {
		collectors.Observe(ev)
		if ev.Kind() == events.KindError {
			log.Warnf("%s: %v", ev.Error.Context, ev.Error.Err)
		}
	}
}
