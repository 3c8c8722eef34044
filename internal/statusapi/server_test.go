package statusapi

import (
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"ocdscope/internal/profiles"
	"ocdscope/internal/sampler"
	"ocdscope/internal/sampler/fakesampler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func setupTestServer(t *testing.T) (*Server, *profiles.DB) {
	t.Helper()
	store, err := profiles.Open(":memory:")
	if err != nil {
		t.Fatalf("profiles.Open: %v", err)
	}

	sess := NewSession(discardLogger())
	newSampler := func(p profiles.Profile) (sampler.Sampler, error) {
		return fakesampler.New(p.SampleRateHz, clockwork.NewRealClock()), nil
	}
	s := New(sess, store, discardLogger(), newSampler)
	return s, store
}

func TestHandleStatus_NoSampler(t *testing.T) {
	s, store := setupTestServer(t)
	defer store.Close()

	req := httptest.NewRequest("GET", "/api/status", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d", rr.Code)
	}
	var st Status
	if err := json.NewDecoder(rr.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.HasSampler {
		t.Fatal("expected no sampler attached")
	}
}

func TestHandleProfilesCRUD(t *testing.T) {
	s, store := setupTestServer(t)
	defer store.Close()

	body := `{"Name":"bench","Method":"simulated","SampleRateHz":100}`
	req := httptest.NewRequest("POST", "/api/profiles", strings.NewReader(body))
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	if rr.Code != 201 {
		t.Fatalf("create status = %d, body=%s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest("GET", "/api/profiles", nil)
	rr = httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("list status = %d", rr.Code)
	}
	var all []profiles.Profile
	if err := json.NewDecoder(rr.Body).Decode(&all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("len(all) = %d, want 1", len(all))
	}
}

func TestHandleStartProfileAndBuffers(t *testing.T) {
	s, store := setupTestServer(t)
	defer store.Close()

	p := &profiles.Profile{Name: "sim", Method: "simulated", SampleRateHz: 1000}
	id, err := store.Create(p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	req := httptest.NewRequest("POST", "/api/profiles/"+strconv.FormatInt(id, 10)+"/start", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("start status = %d, body=%s", rr.Code, rr.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		signals := s.session.Signals()
		if len(signals) > 0 {
			buf := s.session.Buffer(signals[0].ID)
			if buf != nil && buf.Len() > 0 {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no samples arrived in buffer within deadline")
}
