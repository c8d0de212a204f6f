// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Command calibration derives the magnetometer calibration record.
//
//	calibration -mode hard   capture N/E/S/W and compute hard-iron offsets
//	calibration -mode soft   capture a 360° turn and compute soft-iron
//	calibration -mode test   apply the record to a 360° turn
//
// With -capture=false the capture files already in CALIB_DIR are reused.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/dieface/internal/app"
	"github.com/relabs-tech/dieface/internal/config"
)

func main() {
	configPath := flag.String("config", "./dieface.cfg", "path to configuration file")
	mode := flag.String("mode", app.ModeHardIron, "calibration pass: hard, soft or test")
	capture := flag.Bool("capture", true, "capture from the sensor instead of reusing capture files")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logFile, err := app.SetupLogging(config.Get().LogFile)
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunCalibration(ctx, *mode, *capture, os.Stdin, os.Stdout); err != nil {
		log.Printf("calibration: %v", err)
		logFile.Close()
		os.Exit(1)
	}
}
