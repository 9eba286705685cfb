package types

import "testing"

func TestResourcesAddSub(t *testing.T) {
	a := Resources{CPUCores: 2, RAMMB: 2048, StorageGB: 40, BandwidthGB: 100}
	b := Resources{CPUCores: 1, RAMMB: 1024, StorageGB: 10, BandwidthGB: 50}

	sum := a.Add(b)
	if sum != (Resources{CPUCores: 3, RAMMB: 3072, StorageGB: 50, BandwidthGB: 150}) {
		t.Errorf("Add = %+v", sum)
	}

	diff := b.Sub(a)
	if diff != (Resources{CPUCores: -1, RAMMB: -1024, StorageGB: -30, BandwidthGB: -50}) {
		t.Errorf("Sub = %+v", diff)
	}
}

func TestResourcesGet(t *testing.T) {
	r := Resources{CPUCores: 1, RAMMB: 2, StorageGB: 3, BandwidthGB: 4}
	want := map[Dimension]int64{DimCPU: 1, DimRAM: 2, DimStorage: 3, DimBandwidth: 4}
	for _, d := range Dimensions {
		if got := r.Get(d); got != want[d] {
			t.Errorf("Get(%s) = %d, want %d", d, got, want[d])
		}
	}
}

func TestResourcesClampNonNegative(t *testing.T) {
	r := Resources{CPUCores: -1, RAMMB: 512}
	clamped, changed := r.ClampNonNegative()
	if !changed {
		t.Fatal("expected clamp")
	}
	if clamped != (Resources{CPUCores: 0, RAMMB: 512}) {
		t.Errorf("clamped = %+v", clamped)
	}

	ok := Resources{CPUCores: 1}
	if _, changed := ok.ClampNonNegative(); changed {
		t.Error("non-negative vector should not clamp")
	}
}

func TestResourcesIsZero(t *testing.T) {
	if !(Resources{}).IsZero() {
		t.Error("empty vector should be zero")
	}
	if (Resources{CPUCores: 1}).IsZero() {
		t.Error("non-empty vector should not be zero")
	}
}
