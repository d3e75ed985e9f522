package diag

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/satcoord/satring/internal/collector"
)

type fakeProvider struct{ status Status }

func (f fakeProvider) Status() Status { return f.status }

func TestHandleStatusReturnsJSON(t *testing.T) {
	want := Status{
		SelfID:          7,
		ClosestToGround: 7,
		AcceptedCount:   3,
		DecisionSummary: collector.DecisionSummary{DelegatedCount: 2},
	}
	s := New(0, fakeProvider{status: want}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	s.handleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	var got Status
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestHandleHealthReturnsOK(t *testing.T) {
	s := New(0, fakeProvider{}, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
}
