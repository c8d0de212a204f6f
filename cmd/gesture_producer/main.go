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
	metricsAddr := flag.String("metrics", "", "override METRICS_ADDR, e.g. :9101")
	flag.Parse()

	log.Println("starting dieface gesture producer (orientation → die events)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *metricsAddr != "" {
		config.Get().MetricsAddr = *metricsAddr
	}
	logFile, err := app.SetupLogging(config.Get().LogFile)
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunGestureProducer(ctx); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
