package fakesampler

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"ocdscope/internal/sampler"
)

func TestSampler_EmitsAllThreeSignals(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(10, clock)
	defer s.Stop()

	if n := <-s.NotificationChannel(); n.Kind != sampler.KindNewStatus || n.Status != sampler.Sampling {
		t.Fatalf("first notification = %+v, want NewStatus(Sampling)", n)
	}

	for i := 0; i < 50; i++ {
		clock.Advance(10 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}

	sample := <-s.SampledChannel()
	if len(sample.Values) != 3 {
		t.Fatalf("len(Values) = %d, want 3", len(sample.Values))
	}
}

func TestSampler_SetActiveSignals_FiltersOutput(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(10, clock)
	defer s.Stop()
	<-s.NotificationChannel()

	s.SetActiveSignals([]sampler.SignalID{1})

	for i := 0; i < 50; i++ {
		clock.Advance(10 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}

	sample := <-s.SampledChannel()
	if len(sample.Values) != 1 || sample.Values[0].ID != 1 {
		t.Fatalf("Values = %+v, want exactly signal 1", sample.Values)
	}
}

func TestSampler_PauseResume(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(10, clock)
	defer s.Stop()
	<-s.NotificationChannel() // Sampling

	s.Pause()
	if n := <-s.NotificationChannel(); n.Status != sampler.Paused {
		t.Fatalf("status = %v, want Paused", n.Status)
	}

	s.Resume()
	if n := <-s.NotificationChannel(); n.Status != sampler.Sampling {
		t.Fatalf("status = %v, want Sampling", n.Status)
	}
}

func TestSampler_Stop_Terminates(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(10, clock)
	<-s.NotificationChannel() // Sampling

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return")
	}
}

func TestSampler_AvailableSignals(t *testing.T) {
	s := New(10, clockwork.NewFakeClock())
	defer s.Stop()

	avail := s.AvailableSignals()
	if len(avail) != 3 {
		t.Fatalf("len = %d, want 3", len(avail))
	}
}
