package profiles

import (
	"testing"

	"ocdscope/internal/config"
)

func TestStore_CreateGetList(t *testing.T) {
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	p := &Profile{
		Name:              "bench-rig-1",
		Method:            config.MethodRTT,
		SampleRateHz:      0,
		TelnetEndpoint:    "127.0.0.1:4444",
		PollingIntervalMS: 10,
		KeepLastSeconds:   120,
	}
	id, err := d.Create(p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := d.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "bench-rig-1" || got.Method != config.MethodRTT {
		t.Fatalf("Get returned %+v", got)
	}

	all, err := d.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("len(List()) = %d, want 1", len(all))
	}
}

func TestStore_UpdateAndDelete(t *testing.T) {
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	id, err := d.Create(&Profile{Name: "sim", Method: config.MethodSimulated, SampleRateHz: 100})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := d.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	updated.SampleRateHz = 500
	if err := d.Update(&updated); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := d.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SampleRateHz != 500 {
		t.Fatalf("SampleRateHz = %v, want 500", got.SampleRateHz)
	}

	if err := d.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := d.Get(id); err == nil {
		t.Fatal("expected error reading deleted profile")
	}
}
