package app

import (
	"context"
	"fmt"
	"image"
	"log"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/dieface/internal/config"
	"github.com/relabs-tech/dieface/internal/gesture"
	"github.com/relabs-tech/dieface/internal/gps"
	"github.com/relabs-tech/dieface/internal/orientation"
)

// displayRows are the baselines of the four 7x13 text rows on a 128x64 panel.
var displayRows = [4]int{13, 26, 39, 52}

// frameSink is the part of ssd1306.Dev the display loop draws to.
type frameSink interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

// RunDisplay shows the die face, heading, last gesture and GPS position on
// an SSD1306 OLED until ctx is done.
func RunDisplay(ctx context.Context) error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus %q: %w", cfg.DisplayI2CBus, err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, cfg.DisplayI2CAddr, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	log.Printf("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := drawLines(dev, [4]string{"", "  Die Face", " compass & gps", ""}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	r := newSnapshotReader("display", cfg)
	defer r.Close()

	ticker := time.NewTicker(config.Interval(cfg.DisplayUpdateInterval))
	defer ticker.Stop()

	log.Println("display: starting update loop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := drawLines(dev, displayLines(r.Read())); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
}

// displayLines lays out a snapshot as four rows of at most 18 characters.
func displayLines(s Snapshot) [4]string {
	var lines [4]string

	if !s.HaveOrientation {
		lines[0] = "Face  waiting..."
	} else {
		lines[0] = displayFace(s.Orientation)
	}

	if !s.HaveEvent {
		lines[1] = "Die   waiting..."
	} else {
		lines[1] = fmt.Sprintf("Die #%d on %d", s.Event.ID, s.Event.SteadyFace)
		lines[2] = displayAction(s.Event.Action)
	}

	if !s.HaveGPS {
		lines[3] = "GPS   waiting..."
	} else {
		lines[3] = displayFix(s.GPS)
	}
	return lines
}

func displayFace(r orientation.Record) string {
	line := fmt.Sprintf("F%d %s", r.Face, r.Face)
	if r.Heading != orientation.NoHeading {
		line = fmt.Sprintf("F%d %3d°", r.Face, r.Heading)
	}
	if r.Simulated {
		line += " sim"
	}
	return line
}

func displayAction(code int64) string {
	a, ok := gesture.Lookup(code)
	if ok {
		return a.String()
	}
	return "#" + gesture.FormatAction(code)
}

func displayFix(f gps.Fix) string {
	if f.Status == gps.StatusLost {
		return "GPS   no fix"
	}
	return fmt.Sprintf("%06d%c %07d%c", f.Latitude, byte(f.LatitudeNS), f.Longitude, byte(f.LongitudeEW))
}

// renderLines draws the rows into a blank 128x64 frame.
func renderLines(lines [4]string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		if line == "" {
			continue
		}
		drawer.Dot = fixed.P(0, displayRows[i])
		drawer.DrawString(line)
	}
	return img
}

func drawLines(dev frameSink, lines [4]string) error {
	return dev.Draw(dev.Bounds(), renderLines(lines), image.Point{})
}
