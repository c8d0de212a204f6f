// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/relabs-tech/dieface/internal/calibration"
	"github.com/relabs-tech/dieface/internal/config"
	"github.com/relabs-tech/dieface/internal/imu"
	"github.com/relabs-tech/dieface/internal/metrics"
	"github.com/relabs-tech/dieface/internal/orientation"
	"github.com/relabs-tech/dieface/internal/sensors"
	"github.com/relabs-tech/dieface/internal/shm"
)

const orientationDaemon = "orientation"

// openSampleSource opens the FXOS8700, or the simulator when configured or
// when the sensor does not answer.
func openSampleSource(cfg *config.Config) (imu.IMURawSource, bool) {
	if !cfg.FXOSSimulate {
		dev := sensors.NewFXOS8700(cfg.FXOSI2CBus, cfg.FXOSI2CAddr)
		err := dev.Open()
		if err == nil {
			log.Printf("%s: using FXOS8700 on %s at 0x%02X", orientationDaemon, cfg.FXOSI2CBus, cfg.FXOSI2CAddr)
			return dev, false
		}
		log.Printf("%s: FXOS8700 unavailable, simulating: %v", orientationDaemon, err)
	}
	sim := sensors.NewSimSource()
	sim.Open()
	log.Printf("%s: using simulated samples", orientationDaemon)
	return sim, true
}

// calibrationWatcher reloads the calibration record when its file changes,
// so a new calibration takes effect without restarting the daemon.
type calibrationWatcher struct {
	path    string
	modTime time.Time
}

func (w *calibrationWatcher) load() calibration.Record {
	rec, err := calibration.LoadOrUncalibrated(w.path)
	switch {
	case err != nil:
		log.Printf("%s: calibration %s unreadable, using uncalibrated: %v", orientationDaemon, w.path, err)
	case !calibration.Exists(w.path):
		log.Printf("%s: no calibration at %s, headings are uncalibrated", orientationDaemon, w.path)
	default:
		log.Printf("%s: calibration loaded: %s", orientationDaemon, rec)
	}
	if st, err := os.Stat(w.path); err == nil {
		w.modTime = st.ModTime()
	}
	return rec
}

// changed reports whether the file was written since the last load.
func (w *calibrationWatcher) changed() bool {
	st, err := os.Stat(w.path)
	if err != nil {
		return false
	}
	return !st.ModTime().Equal(w.modTime)
}

// orientationLoop holds the per-tick state of the orientation daemon.
type orientationLoop struct {
	src        imu.IMURawSource
	simulated  bool
	classifier *orientation.Classifier
	out        *shm.Writer
	mirror     *mirror
	topic      string
	now        func() time.Time

	last      imu.IMURaw
	published orientation.Record
}

// tick samples once, classifies and publishes. A failed read reuses the
// previous sample.
func (l *orientationLoop) tick() error {
	raw, err := l.src.ReadAccelMag()
	if err != nil {
		metrics.ReadErrors.WithLabelValues(orientationDaemon).Inc()
		log.Printf("%s: sensor read error: %v", orientationDaemon, err)
		raw = l.last
	}
	l.last = raw

	rec := l.classifier.Classify(raw)
	rec.Simulated = l.simulated
	rec.Time = l.now()

	if err := l.out.Publish(rec); err != nil {
		return err
	}
	metrics.Samples.WithLabelValues(orientationDaemon).Inc()
	metrics.Face.Set(float64(rec.Face))
	metrics.Heading.Set(float64(rec.Heading))

	if rec.Face != l.published.Face || rec.Heading != l.published.Heading {
		l.mirror.Publish(l.topic, rec)
		l.published = rec
	}
	return nil
}

// RunOrientationProducer samples the accelerometer and magnetometer, and
// publishes the face up and heading to shared memory until ctx is done.
func RunOrientationProducer(ctx context.Context) error {
	cfg := config.Get()

	watcher := &calibrationWatcher{path: cfg.CalibFile}
	classifier := orientation.NewClassifier(watcher.load())

	out, err := shm.Create(cfg.SHMDir, cfg.SHMNameOrientation, orientation.RecordSize)
	if errors.Is(err, shm.ErrExists) {
		return fmt.Errorf("%w (another orientation producer running, or a stale region from a crash)", err)
	}
	if err != nil {
		return err
	}
	defer out.Close()
	log.Printf("%s: publishing to %s", orientationDaemon, out.Path())

	src, simulated := openSampleSource(cfg)
	defer src.Close()
	if simulated {
		metrics.Simulated.WithLabelValues(orientationDaemon).Set(1)
	}

	m := connectMirror(orientationDaemon, cfg.MQTTBroker, cfg.MQTTClientIDOrientation)
	defer m.Close()
	metrics.ServeBackground(ctx, cfg.MetricsAddr)

	loop := &orientationLoop{
		src:        src,
		simulated:  simulated,
		classifier: classifier,
		out:        out,
		mirror:     m,
		topic:      cfg.TopicOrientation,
		now:        time.Now,
	}

	interval := config.Interval(cfg.OrientationSampleInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	// poll the calibration file about once a second
	checkEvery := int(time.Second / interval)
	if checkEvery < 1 {
		checkEvery = 1
	}

	log.Printf("%s: sampling every %v", orientationDaemon, interval)
	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			log.Printf("%s: stopping", orientationDaemon)
			return nil
		case <-ticker.C:
		}

		if n%checkEvery == 0 && watcher.changed() {
			classifier.Compass().SetCalibration(watcher.load())
		}
		if err := loop.tick(); err != nil {
			return fmt.Errorf("%s: publish: %w", orientationDaemon, err)
		}
	}
}
