// Package metrics exposes daemon counters and the latest published values
// in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dieface"

var (
	Samples = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "samples_total",
		Help:      "Records published to shared memory.",
	}, []string{"daemon"})

	ReadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "read_errors_total",
		Help:      "Failed sensor, serial or shared memory reads.",
	}, []string{"daemon"})

	Face = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "orientation",
		Name:      "face",
		Help:      "Die face pointing up, 1-6.",
	})

	Heading = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "orientation",
		Name:      "heading_degrees",
		Help:      "Compass heading, -1 when face 1 is not up.",
	})

	Simulated = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "simulated",
		Help:      "1 while the daemon publishes simulated data.",
	}, []string{"daemon"})

	DieEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gesture",
		Name:      "events_total",
		Help:      "Committed die events.",
	})

	DieEventID = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "gesture",
		Name:      "event_id",
		Help:      "ID of the latest die event.",
	})

	UndocumentedActions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gesture",
		Name:      "undocumented_actions_total",
		Help:      "Committed actions missing from the action table.",
	})

	GPSStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "gps",
		Name:      "status",
		Help:      "-1 lost, 0 stationary, 1 moving.",
	})

	GPSSpeed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "gps",
		Name:      "speed_kmh",
	})
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// Serve exposes /metrics on addr until ctx is done. An empty addr disables it.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("metrics: listening on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeBackground runs Serve in a goroutine and logs its failure.
func ServeBackground(ctx context.Context, addr string) {
	go func() {
		if err := Serve(ctx, addr); err != nil {
			log.Printf("metrics: %v", err)
		}
	}()
}
