package observability

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRunCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewRunCollector(reg)
	if err != nil {
		t.Fatalf("collector failed: %v", err)
	}

	c.Timesteps.Set(1234)
	c.Energy.Set(5.5e-7)
	c.Speed.Set(120.5)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"fdtd_timesteps 1234",
		"fdtd_field_energy 5.5e-07",
		"fdtd_speed_mcells_per_second 120.5",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q, got:\n%s", want, body)
		}
	}
}

func TestRunCollector_DoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewRunCollector(reg); err != nil {
		t.Fatalf("first collector failed: %v", err)
	}
	if _, err := NewRunCollector(reg); err != nil {
		t.Errorf("re-registration should be tolerated, got %v", err)
	}
}
