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
	flag.Parse()

	log.Println("starting dieface OLED display (shared memory reader)")

	// Load configuration
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

	if err := app.RunDisplay(ctx); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
