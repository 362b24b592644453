//go:build invariants
// +build invariants

package invariants

import (
	"net/http"
	"os"
	"testing"
)

// Runs the blackbox invariant suite against a deployed service.
// Requires VITALSD_TOKEN with write scope; VITALSD_API defaults to localhost.
func TestServiceInvariants(t *testing.T) {
	baseURL := os.Getenv("VITALSD_API")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	token := os.Getenv("VITALSD_TOKEN")
	if token == "" {
		t.Skip("VITALSD_TOKEN not set")
	}

	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		t.Skipf("service unreachable: %v", err)
	}
	_ = resp.Body.Close()

	NewInvariantChecker(baseURL, token).RunAll(t)
}
