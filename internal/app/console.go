// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/relabs-tech/dieface/internal/config"
	"github.com/relabs-tech/dieface/internal/gesture"
	"github.com/relabs-tech/dieface/internal/gps"
	"github.com/relabs-tech/dieface/internal/orientation"
)

// RunConsole prints the three shared regions every CONSOLE_LOG_INTERVAL
// until ctx is done.
func RunConsole(ctx context.Context) error {
	cfg := config.Get()
	r := newSnapshotReader("console", cfg)
	defer r.Close()

	ticker := time.NewTicker(config.Interval(cfg.ConsoleLogInterval))
	defer ticker.Stop()

	for {
		printSnapshot(os.Stdout, r.Read())
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printSnapshot(w io.Writer, s Snapshot) {
	if s.HaveOrientation {
		fmt.Fprintln(w, formatOrientation(s.Orientation))
	} else {
		fmt.Fprintln(w, "[FXOS]  no data")
	}
	if s.HaveEvent {
		fmt.Fprintln(w, formatDieEvent(s.Event))
	} else {
		fmt.Fprintln(w, "[DIE ]  no data")
	}
	if s.HaveGPS {
		fmt.Fprintln(w, formatFix(s.GPS))
	} else {
		fmt.Fprintln(w, "[GPS ]  no data")
	}
}

func formatOrientation(r orientation.Record) string {
	heading := "---"
	if r.Heading != orientation.NoHeading {
		heading = fmt.Sprintf("%3d°", r.Heading)
	}
	return fmt.Sprintf("[FXOS]  face=%d (%s) heading=%s%s", r.Face, r.Face, heading, simTag(r.Simulated))
}

func formatDieEvent(e gesture.DieEvent) string {
	return fmt.Sprintf("[DIE ]  id=%d face=%d action=%s (%v)", e.ID, e.SteadyFace, gesture.FormatAction(e.Action), gesture.Action(e.Action))
}

func formatFix(f gps.Fix) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[GPS ]  status=%d lat=%06d%c lon=%07d%c alt=%dft",
		f.Status, f.Latitude, byte(f.LatitudeNS), f.Longitude, byte(f.LongitudeEW), f.Altitude)
	fmt.Fprintf(&b, " speed=%dkm/h track=%d° decl=%.3f", f.Speed, f.Track, f.Declination)
	fmt.Fprintf(&b, " date=%08d gmt=%06d solar=%06d", f.Date, f.GMT, f.SolarTime)
	b.WriteString(simTag(f.Simulated))
	return b.String()
}

func simTag(simulated bool) string {
	if simulated {
		return " [sim]"
	}
	return ""
}
