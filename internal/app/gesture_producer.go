package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/dieface/internal/config"
	"github.com/relabs-tech/dieface/internal/gesture"
	"github.com/relabs-tech/dieface/internal/metrics"
	"github.com/relabs-tech/dieface/internal/orientation"
	"github.com/relabs-tech/dieface/internal/shm"
)

const gestureDaemon = "gesture"

type gestureLoop struct {
	in      *shm.Follower
	machine *gesture.Machine
	out     *shm.Writer
	mirror  *mirror
	topic   string

	face    orientation.Face // last face read, kept while the producer is away
	waiting bool
}

func newGestureLoop(in *shm.Follower, machine *gesture.Machine, out *shm.Writer) *gestureLoop {
	return &gestureLoop{in: in, machine: machine, out: out, face: machine.Face()}
}

// tick reads the face, steps the machine and republishes the last event.
func (l *gestureLoop) tick() error {
	var rec orientation.Record
	seq, err := l.in.ReadInto(&rec)
	switch {
	case err != nil:
		if !l.waiting {
			if errors.Is(err, shm.ErrNotAvailable) {
				log.Printf("%s: orientation producer not running, holding face %d", gestureDaemon, l.face)
			} else {
				log.Printf("%s: orientation read error: %v", gestureDaemon, err)
			}
			l.waiting = true
		}
		metrics.ReadErrors.WithLabelValues(gestureDaemon).Inc()
	case seq == 0:
		// region created, nothing written yet
	case !rec.Face.Valid():
		log.Printf("%s: ignoring invalid face %d", gestureDaemon, rec.Face)
	default:
		if l.waiting {
			log.Printf("%s: orientation producer available", gestureDaemon)
			l.waiting = false
		}
		l.face = rec.Face
	}

	ev, committed := l.machine.Update(l.face)
	if err := l.out.Publish(ev); err != nil {
		return err
	}
	metrics.Samples.WithLabelValues(gestureDaemon).Inc()

	if committed {
		metrics.DieEvents.Inc()
		metrics.DieEventID.Set(float64(ev.ID))
		if _, ok := gesture.Lookup(ev.Action); !ok && ev.Action != int64(gesture.NoAction) {
			metrics.UndocumentedActions.Inc()
		}
		log.Printf("%s: event %d face %d action %v", gestureDaemon, ev.ID, ev.SteadyFace, gesture.Action(ev.Action))
		l.mirror.Publish(l.topic, ev)
	}
	return nil
}

// RunGestureProducer follows the orientation region, recognises rolls and
// publishes the last committed die event until ctx is done.
func RunGestureProducer(ctx context.Context) error {
	cfg := config.Get()

	out, err := shm.Create(cfg.SHMDir, cfg.SHMNameDieEvent, gesture.DieEventSize)
	if err != nil {
		return err
	}
	defer out.Close()
	log.Printf("%s: publishing to %s", gestureDaemon, out.Path())

	in := shm.NewFollower(cfg.SHMDir, cfg.SHMNameOrientation, orientation.RecordSize)
	defer in.Close()

	machine := gesture.New(gesture.Options{
		SteadyAfter: time.Duration(cfg.GestureSteadySeconds) * time.Second,
		Validate:    cfg.GestureValidateActions,
	})

	m := connectMirror(gestureDaemon, cfg.MQTTBroker, cfg.MQTTClientIDGesture)
	defer m.Close()
	metrics.ServeBackground(ctx, cfg.MetricsAddr)

	loop := newGestureLoop(in, machine, out)
	loop.mirror = m
	loop.topic = cfg.TopicDieEvent

	first := machine.Event()
	if err := out.Publish(first); err != nil {
		return fmt.Errorf("%s: publish: %w", gestureDaemon, err)
	}
	m.Publish(cfg.TopicDieEvent, first)

	interval := config.Interval(cfg.GestureSampleInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("%s: polling every %v, steady after %ds", gestureDaemon, interval, cfg.GestureSteadySeconds)
	for {
		select {
		case <-ctx.Done():
			log.Printf("%s: stopping", gestureDaemon)
			return nil
		case <-ticker.C:
		}
		if err := loop.tick(); err != nil {
			return fmt.Errorf("%s: publish: %w", gestureDaemon, err)
		}
	}
}
