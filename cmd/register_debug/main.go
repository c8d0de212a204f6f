// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/dieface/internal/app"
	"github.com/relabs-tech/dieface/internal/config"
	"github.com/relabs-tech/dieface/internal/sensors"
)

func main() {
	configPath := flag.String("config", "./dieface.cfg", "path to configuration file")
	flag.Parse()

	log.Println("starting FXOS8700 register debug tool (standalone)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()

	dev := sensors.NewFXOS8700(cfg.FXOSI2CBus, cfg.FXOSI2CAddr)
	if err := dev.Open(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
	defer dev.Close()

	bench := app.NewRegisterBench(dev)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", app.HandleRegisterDebugWS(bench))
	mux.HandleFunc("/api/sample", app.HandleSampleData(bench))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "web/register_debug.html")
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.RegisterDebugPort), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Register debug tool listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("fatal: %v", err)
	}
}
