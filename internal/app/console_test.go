package app

import (
	"bytes"
	"image"
	"strings"
	"testing"

	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/dieface/internal/gesture"
	"github.com/relabs-tech/dieface/internal/gps"
	"github.com/relabs-tech/dieface/internal/orientation"
)

func fullSnapshot() Snapshot {
	return Snapshot{
		Orientation:     orientation.Record{Face: orientation.FaceUp, Heading: 275},
		HaveOrientation: true,
		Event:           gesture.DieEvent{ID: 12, SteadyFace: orientation.FaceUp, Action: int64(gesture.FrontFlip)},
		HaveEvent:       true,
		GPS:             gps.PercyLake(),
		HaveGPS:         true,
	}
}

func TestPrintSnapshot(t *testing.T) {
	var buf bytes.Buffer
	printSnapshot(&buf, fullSnapshot())
	out := buf.String()

	for _, want := range []string{
		"[FXOS]  face=1 (up) heading=275°",
		"[DIE ]  id=12 face=1 action=15621 (FRONTFLIP)",
		"lat=451309N lon=0782211W alt=1450ft",
		"[sim]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printSnapshot(&buf, Snapshot{})
	if strings.Count(buf.String(), "no data") != 3 {
		t.Errorf("empty snapshot:\n%s", buf.String())
	}
}

func TestFormatOrientationWithoutHeading(t *testing.T) {
	got := formatOrientation(orientation.Record{Face: orientation.FaceWest, Heading: orientation.NoHeading})
	if got != "[FXOS]  face=3 (west) heading=---" {
		t.Errorf("got %q", got)
	}
}

func TestDisplayLines(t *testing.T) {
	cases := []struct {
		name string
		snap Snapshot
		want [4]string
	}{
		{
			name: "waiting",
			want: [4]string{"Face  waiting...", "Die   waiting...", "", "GPS   waiting..."},
		},
		{
			name: "full",
			snap: fullSnapshot(),
			want: [4]string{"F1 275°", "Die #12 on 1", "FRONTFLIP", "451309N 0782211W"},
		},
		{
			name: "side face unknown roll lost fix",
			snap: Snapshot{
				Orientation:     orientation.Record{Face: orientation.FaceSouth, Heading: orientation.NoHeading, Simulated: true},
				HaveOrientation: true,
				Event:           gesture.DieEvent{ID: 3, SteadyFace: orientation.FaceSouth, Action: 1535},
				HaveEvent:       true,
				GPS:             gps.NullIsland(),
				HaveGPS:         true,
			},
			want: [4]string{"F5 south sim", "Die #3 on 5", "#1535", "GPS   no fix"},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := displayLines(c.snap); got != c.want {
				t.Errorf("got %q, expected %q", got, c.want)
			}
		})
	}
}

type fakePanel struct {
	frames []image.Image
}

func (p *fakePanel) Bounds() image.Rectangle { return image.Rect(0, 0, 128, 64) }

func (p *fakePanel) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	p.frames = append(p.frames, src)
	return nil
}

func litPixels(img *image1bit.VerticalLSB, top, bottom int) int {
	n := 0
	for y := top; y < bottom; y++ {
		for x := 0; x < 128; x++ {
			if img.BitAt(x, y) == image1bit.On {
				n++
			}
		}
	}
	return n
}

func TestRenderLines(t *testing.T) {
	img := renderLines([4]string{"F1 275°", "", "", ""})
	if litPixels(img, 0, 16) == 0 {
		t.Error("first row is blank")
	}
	if n := litPixels(img, 16, 64); n != 0 {
		t.Errorf("%d pixels lit below the first row", n)
	}

	panel := &fakePanel{}
	if err := drawLines(panel, displayLines(fullSnapshot())); err != nil {
		t.Fatal(err)
	}
	if len(panel.frames) != 1 {
		t.Fatalf("%d frames drawn", len(panel.frames))
	}
}
