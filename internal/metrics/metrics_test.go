package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersExposed(t *testing.T) {
	Samples.WithLabelValues("test").Inc()
	Samples.WithLabelValues("test").Inc()
	Face.Set(4)

	if got := testutil.ToFloat64(Samples.WithLabelValues("test")); got != 2 {
		t.Errorf("samples = %v", got)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`dieface_samples_total{daemon="test"} 2`,
		"dieface_orientation_face 4",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestServeDisabled(t *testing.T) {
	if err := Serve(context.Background(), ""); err != nil {
		t.Errorf("empty addr: %v", err)
	}
}
