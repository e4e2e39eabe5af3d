package metrics

import (
	"os"
	"testing"
)

func TestAddrFromEnv(t *testing.T) {
	t.Setenv("METRICS_ADDR", "")
	os.Unsetenv("METRICS_ADDR")
	if got := AddrFromEnv(); got != ":9090" {
		t.Fatalf("default: got %q", got)
	}
	t.Setenv("METRICS_ADDR", "127.0.0.1:9191")
	if got := AddrFromEnv(); got != "127.0.0.1:9191" {
		t.Fatalf("override: got %q", got)
	}
	t.Setenv("METRICS_ADDR", "")
	if got := AddrFromEnv(); got != "" {
		t.Fatalf("explicit empty must disable: got %q", got)
	}
}
