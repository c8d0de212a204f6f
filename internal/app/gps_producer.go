package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/dieface/internal/config"
	"github.com/relabs-tech/dieface/internal/gps"
	"github.com/relabs-tech/dieface/internal/metrics"
	"github.com/relabs-tech/dieface/internal/shm"
)

const gpsDaemon = "gps"

// gpsPublisher writes fixes to shared memory and mirrors them to MQTT.
type gpsPublisher struct {
	out    *shm.Writer
	mirror *mirror
	topic  string
}

func (p *gpsPublisher) publish(f gps.Fix) error {
	if err := p.out.Publish(f); err != nil {
		return fmt.Errorf("%s: publish: %w", gpsDaemon, err)
	}
	metrics.Samples.WithLabelValues(gpsDaemon).Inc()
	metrics.GPSStatus.Set(float64(f.Status))
	metrics.GPSSpeed.Set(float64(f.Speed))
	if f.Simulated {
		metrics.Simulated.WithLabelValues(gpsDaemon).Set(1)
	} else {
		metrics.Simulated.WithLabelValues(gpsDaemon).Set(0)
	}
	p.mirror.Publish(p.topic, f)
	return nil
}

// readNMEA feeds lines from r into tr and publishes after every RMC
// sentence. It returns when r fails.
func readNMEA(r io.Reader, tr *gps.Tracker, publish func(gps.Fix) error) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" && tr.ParseLine(line) {
			if perr := publish(tr.Fix()); perr != nil {
				return perr
			}
		}
		if err != nil {
			return err
		}
	}
}

// simulateGPS publishes the fixed Percy Lake location once a second.
func simulateGPS(ctx context.Context, publish func(gps.Fix) error) error {
	log.Printf("%s: publishing simulated fix at Percy Lake", gpsDaemon)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		if err := publish(gps.PercyLake()); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunGPSProducer reads NMEA from the GPS serial port and publishes fixes to
// shared memory until ctx is done. Without a receiver it publishes a
// simulated fix instead.
func RunGPSProducer(ctx context.Context) error {
	cfg := config.Get()

	out, err := shm.Create(cfg.SHMDir, cfg.SHMNameGPS, gps.FixSize)
	if err != nil {
		return err
	}
	defer out.Close()
	log.Printf("%s: publishing to %s", gpsDaemon, out.Path())

	m := connectMirror(gpsDaemon, cfg.MQTTBroker, cfg.MQTTClientIDGPS)
	defer m.Close()
	metrics.ServeBackground(ctx, cfg.MetricsAddr)

	p := &gpsPublisher{out: out, mirror: m, topic: cfg.TopicGPS}
	if err := p.publish(gps.NullIsland()); err != nil {
		return err
	}

	if cfg.GPSSimulate {
		return simulateGPS(ctx, p.publish)
	}

	serialOpts := serial.OpenOptions{
		PortName:              cfg.GPSSerialPort,
		BaudRate:              uint(cfg.GPSBaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(serialOpts)
	if err != nil {
		log.Printf("%s: open %s: %v", gpsDaemon, serialOpts.PortName, err)
		return simulateGPS(ctx, p.publish)
	}
	log.Printf("%s: serial port opened on %s at %d baud", gpsDaemon, serialOpts.PortName, serialOpts.BaudRate)

	// closing the port is the only way to unblock a pending read
	var closeOnce sync.Once
	closePort := func() { closeOnce.Do(func() { port.Close() }) }
	defer closePort()
	go func() {
		<-ctx.Done()
		closePort()
	}()

	tr := gps.NewTracker(cfg.GPSDeclination)
	err = readNMEA(port, tr, p.publish)
	if ctx.Err() != nil {
		log.Printf("%s: stopping", gpsDaemon)
		return nil
	}
	metrics.ReadErrors.WithLabelValues(gpsDaemon).Inc()
	log.Printf("%s: serial read error, switching to simulation: %v", gpsDaemon, err)
	return simulateGPS(ctx, p.publish)
}
