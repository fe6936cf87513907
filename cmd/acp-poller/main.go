// cmd/acp-poller/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ovum-tools/acp-poller/internal/api"
	"github.com/ovum-tools/acp-poller/internal/config"
	"github.com/ovum-tools/acp-poller/internal/poller"
	"github.com/ovum-tools/acp-poller/internal/publish"
	"github.com/ovum-tools/acp-poller/internal/regmap"
	"github.com/ovum-tools/acp-poller/internal/snapshot"
	"github.com/ovum-tools/acp-poller/internal/transport"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: acp-poller <config.yaml>")
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}

	config.Normalize(cfg)

	// --------------------
	// Register map (built-in Ovum map unless overridden)
	// --------------------

	rmap := regmap.Default()
	if cfg.RegisterMap != "" {
		rmap, err = regmap.LoadFile(cfg.RegisterMap)
		if err != nil {
			log.Fatalf("register map load failed: %v", err)
		}
	}
	log.Printf("register map %s: %d registers, %d enabled",
		rmap.Version, len(rmap.Registers), len(rmap.Enabled()))

	// --------------------
	// Core: snapshot store + poll scheduler
	// --------------------

	store := snapshot.NewStore()

	sched, err := poller.New(rmap, store, poller.Config{
		Connection: transport.Config{
			Host:    cfg.Source.Host,
			Port:    cfg.Source.Port,
			UnitID:  cfg.Source.UnitID,
			Timeout: time.Duration(cfg.Source.TimeoutMs) * time.Millisecond,
		},
		Interval: time.Duration(cfg.Poll.IntervalMs) * time.Millisecond,
		Plan: regmap.PlanOptions{
			MaxRegisters: regmap.DefaultMaxRegisters,
			MaxGap:       regmap.DefaultMaxGap,
		},
	})
	if err != nil {
		log.Fatalf("poller build failed: %v", err)
	}

	// --------------------
	// Optional MQTT mirror
	// --------------------

	if cfg.MQTT != nil {
		pub := publish.New(publish.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		})
		if err := pub.Connect(); err != nil {
			// Auto-reconnect recovers a late broker; keep polling regardless.
			log.Printf("mqtt connect failed (will retry): %v", err)
		}
		sched.OnCommit(pub.PublishSnapshot)
		defer pub.Close()
	}

	if err := sched.Start(); err != nil {
		log.Fatalf("poller start failed: %v", err)
	}
	defer sched.Stop()

	// --------------------
	// HTTP surface
	// --------------------

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.NewHandler(store, sched, rmap).Register(e)

	go func() {
		log.Printf("http listening on %s", cfg.HTTP.Listen)
		if err := e.Start(cfg.HTTP.Listen); err != nil && err != http.ErrServerClosed {
			// Trigger the orderly shutdown path below; a bare exit would
			// skip the deferred poller and publisher teardown.
			log.Printf("http server failed: %v", err)
			stop()
		}
	}()

	// --------------------
	// Block until shutdown signal or server failure
	// --------------------

	<-ctx.Done()

	log.Print("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}
