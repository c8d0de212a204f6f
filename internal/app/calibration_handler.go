// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/relabs-tech/dieface/internal/calibration"
	"github.com/relabs-tech/dieface/internal/config"
	"github.com/relabs-tech/dieface/internal/imu"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// Calibration phases and steps reported to the browser.
const (
	phaseHard = "hard"
	phaseSoft = "soft"
	stepTurn  = "rotate"
)

// rotationStep follows the four heading captures.
const rotationStep = len(calibration.Headings)

// CalibrationSession holds the state of a browser guided calibration: four
// heading captures, an optional 360° rotation, then save.
type CalibrationSession struct {
	Conn *websocket.Conn

	cfg  *config.Config
	open func() (imu.IMURawSource, error)
	src  imu.IMURawSource

	writeMu  sync.Mutex
	size     int
	factor   float64
	interval time.Duration

	step int
	set  calibration.SampleSet
	hard *calibration.HardIronResult
	soft *calibration.SoftIronResult
}

// WebSocket message types
type WSMessage struct {
	Action       string  `json:"action"` // init, next, skip, save, cancel
	SampleSize   int     `json:"sample_size,omitempty"`
	StdDevFactor float64 `json:"stddev_factor,omitempty"`
	Overwrite    bool    `json:"overwrite,omitempty"`
}

type WSResponse struct {
	Type     string      `json:"type"` // phase, step, progress, stats, action, complete, error
	Phase    string      `json:"phase,omitempty"`
	Step     string      `json:"step,omitempty"`
	Progress float64     `json:"progress,omitempty"`
	Stats    interface{} `json:"stats,omitempty"`
	Results  interface{} `json:"results,omitempty"`
	Message  string      `json:"message,omitempty"`
}

// HandleCalibrationWS serves calibration sessions. open is called once per
// session, on the first capture.
func HandleCalibrationWS(cfg *config.Config, open func() (imu.IMURawSource, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("calibration: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		session := &CalibrationSession{
			Conn:     conn,
			cfg:      cfg,
			open:     open,
			size:     cfg.CalibSampleSize,
			factor:   cfg.CalibStdDevFactor,
			interval: config.Interval(cfg.CalibSampleInterval),
		}
		defer session.close()

		for {
			var msg WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("calibration: websocket read error: %v", err)
				}
				return
			}

			if err := session.handle(r.Context(), msg); err != nil {
				if errors.Is(err, errSessionCancelled) {
					log.Printf("calibration: cancelled by user")
					return
				}
				session.sendError(err.Error())
			}
		}
	}
}

var errSessionCancelled = errors.New("calibration cancelled")

func (s *CalibrationSession) handle(ctx context.Context, msg WSMessage) error {
	switch msg.Action {
	case "init":
		if msg.SampleSize > 0 {
			s.size = msg.SampleSize
		}
		if msg.StdDevFactor > 0 {
			s.factor = msg.StdDevFactor
		}
		s.step = 0
		s.hard, s.soft = nil, nil
		log.Printf("calibration: session started, %d samples per capture, factor %g", s.size, s.factor)
		s.sendPhase(phaseHard)
		s.sendStep(calibration.Headings[0].String(), phaseHard)
		return nil

	case "next":
		return s.runNextStep(ctx)

	case "skip":
		if s.hard == nil || s.step != rotationStep {
			return fmt.Errorf("nothing to skip")
		}
		s.step++
		s.sendActionReady()
		return nil

	case "save":
		return s.complete(msg.Overwrite)

	case "cancel":
		return errSessionCancelled
	}
	return fmt.Errorf("unknown action %q", msg.Action)
}

func (s *CalibrationSession) runNextStep(ctx context.Context) error {
	if s.src == nil {
		src, err := s.open()
		if err != nil {
			return fmt.Errorf("open magnetometer: %w", err)
		}
		s.src = src
	}

	switch {
	case s.step < rotationStep:
		return s.runHeadingStep(ctx, calibration.Headings[s.step])
	case s.step == rotationStep:
		return s.runRotationStep(ctx)
	}
	return fmt.Errorf("all captures done, save or cancel")
}

func (s *CalibrationSession) runHeadingStep(ctx context.Context, h calibration.Heading) error {
	s.sendStep(h.String(), phaseHard)
	points, err := s.capture(ctx)
	if err != nil {
		return fmt.Errorf("capture %s: %w", h, err)
	}
	if err := calibration.SaveCapture(s.cfg.CalibDir, h.CaptureFile(), points); err != nil {
		return err
	}
	s.set[h] = points
	s.step++

	if s.step < rotationStep {
		s.sendStep(calibration.Headings[s.step].String(), phaseHard)
		s.sendActionReady()
		return nil
	}

	res, err := calibration.HardIron(s.set, s.factor)
	if err != nil {
		return fmt.Errorf("hard-iron: %w", err)
	}
	if err := writeScrubFiles(s.cfg.CalibDir, res); err != nil {
		return err
	}
	s.hard = &res
	log.Printf("calibration: hard iron %s", res.Record)
	logHardIronWarnings(res)

	s.sendStats(res)
	s.sendPhase(phaseSoft)
	s.sendStep(stepTurn, phaseSoft)
	s.sendActionReady()
	return nil
}

func (s *CalibrationSession) runRotationStep(ctx context.Context) error {
	raw, err := s.capture(ctx)
	if err != nil {
		return fmt.Errorf("capture rotation: %w", err)
	}
	if err := calibration.SaveCapture(s.cfg.CalibDir, calibration.RotationRawFile, raw); err != nil {
		return err
	}
	res, err := calibration.SoftIron(s.hard.Record, raw)
	if err != nil {
		return fmt.Errorf("soft-iron: %w", err)
	}
	if err := calibration.SaveCapture(s.cfg.CalibDir, calibration.RotationFile, res.Corrected); err != nil {
		return err
	}
	s.soft = &res
	s.step++
	log.Printf("calibration: soft iron %s", res.Record)
	logSoftIronWarnings(res)

	s.sendStats(res)
	s.sendActionReady()
	return nil
}

// capture reads one sample set, reporting progress about every 5%.
func (s *CalibrationSession) capture(ctx context.Context) ([]calibration.Point, error) {
	s.sendProgress(0)
	every := s.size / 20
	if every == 0 {
		every = 1
	}
	return captureMag(ctx, s.src, s.size, s.interval, func(done, total int) {
		if done == total || done%every == 0 {
			s.sendProgress(float64(done) * 100 / float64(total))
		}
	})
}

func (s *CalibrationSession) complete(overwrite bool) error {
	var rec calibration.Record
	switch {
	case s.soft != nil:
		rec = s.soft.Record
	case s.hard != nil && s.step > rotationStep:
		rec = s.hard.Record
	default:
		return fmt.Errorf("calibration is not finished")
	}

	path := s.cfg.CalibFile
	if calibration.Exists(path) && !overwrite {
		return fmt.Errorf("%s exists, confirm overwrite", path)
	}
	if err := calibration.Save(path, rec); err != nil {
		return err
	}
	log.Printf("calibration: saved %s to %s", rec, path)

	s.write(WSResponse{
		Type:    "complete",
		Results: map[string]interface{}{"filename": path, "record": rec},
	})
	return nil
}

func (s *CalibrationSession) close() {
	if s.src != nil {
		s.src.Close()
	}
}

func (s *CalibrationSession) write(resp WSResponse) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.Conn.WriteJSON(resp); err != nil {
		log.Printf("calibration: websocket write error: %v", err)
	}
}

func (s *CalibrationSession) sendPhase(phase string) {
	s.write(WSResponse{
		Type:  "phase",
		Phase: phase,
	})
}

func (s *CalibrationSession) sendStep(step, phase string) {
	s.write(WSResponse{
		Type:  "step",
		Step:  step,
		Phase: phase,
	})
}

func (s *CalibrationSession) sendProgress(progress float64) {
	s.write(WSResponse{
		Type:     "progress",
		Progress: progress,
	})
}

func (s *CalibrationSession) sendStats(stats interface{}) {
	s.write(WSResponse{
		Type:  "stats",
		Stats: stats,
	})
}

func (s *CalibrationSession) sendActionReady() {
	s.write(WSResponse{
		Type:    "action",
		Message: "ready",
	})
}

func (s *CalibrationSession) sendError(message string) {
	s.write(WSResponse{
		Type:    "error",
		Message: message,
	})
}
