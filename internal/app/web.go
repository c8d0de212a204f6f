package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/relabs-tech/dieface/internal/calibration"
	"github.com/relabs-tech/dieface/internal/config"
	"github.com/relabs-tech/dieface/internal/gesture"
	"github.com/relabs-tech/dieface/internal/imu"
	"github.com/relabs-tech/dieface/internal/metrics"
)

// webPollInterval is how often the web server refreshes its snapshot and
// pushes it to live clients.
const webPollInterval = 100 * time.Millisecond

// liveState is the latest snapshot shared between the poller and handlers.
type liveState struct {
	mu   sync.RWMutex
	snap Snapshot
}

func (s *liveState) set(snap Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

func (s *liveState) get() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

type actionEntry struct {
	Code int64  `json:"code"`
	Name string `json:"name"`
}

// RunWeb serves the dashboard, the JSON API, the live and calibration
// websockets and the metrics endpoint until ctx is done.
func RunWeb(ctx context.Context) error {
	cfg := config.Get()

	state := &liveState{}
	reader := newSnapshotReader("web", cfg)
	defer reader.Close()
	state.set(reader.Read())

	go func() {
		ticker := time.NewTicker(webPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				state.set(reader.Read())
			}
		}
	}()

	open := func() (imu.IMURawSource, error) { return openCalibrationSource(cfg) }
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler: newWebMux(cfg, state, open, http.Dir("web")),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("web server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newWebMux(cfg *config.Config, state *liveState, open func() (imu.IMURawSource, error), static http.FileSystem) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, state.get())
	})
	mux.HandleFunc("/api/orientation", func(w http.ResponseWriter, r *http.Request) {
		s := state.get()
		if !s.HaveOrientation {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, s.Orientation)
	})
	mux.HandleFunc("/api/event", func(w http.ResponseWriter, r *http.Request) {
		s := state.get()
		if !s.HaveEvent {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, s.Event)
	})
	mux.HandleFunc("/api/gps", func(w http.ResponseWriter, r *http.Request) {
		s := state.get()
		if !s.HaveGPS {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, s.GPS)
	})
	mux.HandleFunc("/api/actions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, actionTable())
	})
	mux.HandleFunc("/api/calibration", func(w http.ResponseWriter, r *http.Request) {
		rec, err := calibration.Load(cfg.CalibFile)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, rec)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		streamSnapshots(w, r, state)
	})
	mux.HandleFunc("/ws/calibration", HandleCalibrationWS(cfg, open))
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", http.FileServer(static))
	return mux
}

func actionTable() []actionEntry {
	known := gesture.Known()
	sort.Slice(known, func(i, j int) bool { return known[i] < known[j] })
	out := make([]actionEntry, 0, len(known))
	for _, a := range known {
		out = append(out, actionEntry{Code: int64(a), Name: a.String()})
	}
	return out
}

// streamSnapshots pushes the snapshot to a websocket client whenever it
// changes, until the client goes away.
func streamSnapshots(w http.ResponseWriter, r *http.Request, state *liveState) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// the reader only notices the client closing
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(webPollInterval)
	defer ticker.Stop()

	var last Snapshot
	first := true
	for {
		if s := state.get(); first || s != last {
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			if err := conn.WriteJSON(s); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("web: websocket write error: %v", err)
				}
				return
			}
			last, first = s, false
		}
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}
