package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/alimasry/go-collab-canvas/config"
	"github.com/alimasry/go-collab-canvas/server"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}

	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	flag.Parse()

	log := cfg.NewLogger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := server.NewMetrics(reg)

	hub := server.NewHub(server.Options{
		ViewportMode:    cfg.ViewportMode,
		CursorRate:      cfg.CursorRate,
		CursorBurst:     cfg.CursorBurst,
		RoomIdleTimeout: cfg.RoomIdleTimeout,
		Logger:          log,
		Metrics:         metrics,
	})
	defer hub.Close()

	handler := server.NewHandler(hub, server.HandlerConfig{
		Origins:        cfg.Origins(),
		AccessPhrase:   cfg.AccessPhrase,
		HandshakeRate:  cfg.HandshakeRate,
		HandshakeBurst: cfg.HandshakeBurst,
		TrustedProxies: cfg.TrustedProxies,
		Version:        version,
		Logger:         log,
		Metrics:        metrics,
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"addr":     *addr,
			"viewport": cfg.ViewportMode,
			"origins":  cfg.AllowedOrigins,
		}).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	log.Infof("received %s, shutting down", <-sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
