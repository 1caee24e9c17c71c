package nwb

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"icephys/pkg/domain"
)

func TestExtractSingleMatch(t *testing.T) {
	f := NewFile("sess", "", time.Now().UTC(), nil)
	dev := f.CreateDevice("rig", "")
	elec := f.CreateIntracellularElectrode("cell01", dev, "N/A", "", "")
	pcs := f.CreatePatchClampSeries("membrane_potential", elec, "mV", 1e-3, 1, []float64{0}, 0, 1)
	if err := f.AddAcquisition(pcs); err != nil {
		t.Fatalf("add acquisition: %v", err)
	}
	obj, err := Extract(f, TypePatchClampSeries)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if obj != pcs {
		t.Fatalf("extract returned %v, want the attached series", obj)
	}
	// A stimulus series is not a plain patch-clamp match, and vice versa.
	if _, err := Extract(f, TypeCurrentClampStimulusSeries); !errors.Is(err, domain.ErrObjectNotFound) {
		t.Fatalf("expected object-not-found for absent stimulus, got %v", err)
	}
}

func TestExtractNoMatch(t *testing.T) {
	f := NewFile("sess", "", time.Now().UTC(), nil)
	_, err := Extract(f, TypePatchClampSeries)
	if !errors.Is(err, domain.ErrObjectNotFound) {
		t.Fatalf("expected object-not-found, got %v", err)
	}
}

func TestExtractAmbiguous(t *testing.T) {
	f := NewFile("sess", "", time.Now().UTC(), nil)
	dev := f.CreateDevice("rig", "")
	elec := f.CreateIntracellularElectrode("cell01", dev, "N/A", "", "")
	for _, name := range []string{"membrane_potential", "membrane_potential_2"} {
		pcs := f.CreatePatchClampSeries(name, elec, "mV", 1e-3, 1, []float64{0}, 0, 1)
		if err := f.AddAcquisition(pcs); err != nil {
			t.Fatalf("add acquisition %s: %v", name, err)
		}
	}
	_, err := Extract(f, TypePatchClampSeries)
	if !errors.Is(err, domain.ErrAmbiguousObject) {
		t.Fatalf("expected ambiguous-object, got %v", err)
	}
}
