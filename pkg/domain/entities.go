// Package domain defines the persistent entities, keys, and error taxonomy
// shared by the icephys ingestion pipeline.
package domain

import (
	"fmt"
	"time"
)

// Hemisphere identifies the brain hemisphere of a recording location.
type Hemisphere string

// Supported hemisphere values.
const (
	HemisphereLeft  Hemisphere = "left"
	HemisphereRight Hemisphere = "right"
)

// CoordinateRef is the stereotaxic reference frame coordinates are measured from.
type CoordinateRef string

// Supported stereotaxic reference frames.
const (
	RefBregma CoordinateRef = "bregma"
	RefLambda CoordinateRef = "lambda"
)

// CellType classifies a recorded cell.
type CellType string

// Supported cell classifications. CellTypeUnknown covers unclassified cells.
const (
	CellTypeExcitatory CellType = "excitatory"
	CellTypeInhibitory CellType = "inhibitory"
	CellTypeUnknown    CellType = "N/A"
)

// SessionKey uniquely identifies one experiment recording session.
type SessionKey struct {
	SubjectID   string    `json:"subject_id"`
	SessionTime time.Time `json:"session_time"`
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s @ %s", k.SubjectID, k.SessionTime.Format(time.RFC3339))
}

// CellKey identifies a cell recorded within a session.
type CellKey struct {
	SessionKey
	CellID string `json:"cell_id"`
}

func (k CellKey) String() string {
	return fmt.Sprintf("%s / cell %s", k.SessionKey, k.CellID)
}

// BrainLocationKey identifies a stereotaxic recording location.
type BrainLocationKey struct {
	Region     string     `json:"brain_region"`
	Hemisphere Hemisphere `json:"hemisphere"`
}

// Session is one experiment recording session. It owns exactly one source
// composite file by reference and is immutable after registration.
type Session struct {
	SessionKey
	// NWBFilePath references the session's exported composite container.
	// The store persists the path; decoding goes through the session adapter.
	NWBFilePath string `json:"nwb_file"`
}

// BrainLocation is an immutable lookup entity carrying stereotaxic
// coordinates in millimeters relative to CoordinateRef.
type BrainLocation struct {
	BrainLocationKey
	CoordinateRef CoordinateRef `json:"coordinate_ref"`
	// AP is anterior positive, posterior negative.
	AP float64 `json:"coordinate_ap"`
	// ML is always positive, larger when more lateral.
	ML float64 `json:"coordinate_ml"`
	// DV is always positive, larger when more ventral.
	DV float64 `json:"coordinate_dv"`
}

// WholeCellDevice describes the device used for electrical stimulation.
// Immutable lookup entity.
type WholeCellDevice struct {
	Name        string `json:"device_name"`
	Description string `json:"device_desc"`
}

// Cell is a cell that underwent intracellular recording in a session.
// Registered manually; read-only to the ingestion core.
type Cell struct {
	CellKey
	CellType   CellType `json:"cell_type"`
	BrainLocationKey
	DeviceName string `json:"device_name"`
}

// LickTrace holds the behavioral lick signal for one session.
type LickTrace struct {
	SessionKey
	Left         []float64 `json:"lick_trace_left"`
	Right        []float64 `json:"lick_trace_right"`
	StartTime    float64   `json:"lick_trace_start_time"`
	SamplingRate float64   `json:"lick_trace_sampling_rate"`
}

// MembranePotential holds the patch-clamp recording for one cell. The
// PatchClampPath column references the derived composite bundle persisted
// by the patch-clamp attribute adapter.
type MembranePotential struct {
	CellKey
	PatchClampPath    string    `json:"nwb_patch_clamp"`
	Potential         []float64 `json:"membrane_potential"`
	PotentialWoSpikes []float64 `json:"membrane_potential_wo_spike"`
	StartTime         float64   `json:"membrane_potential_start_time"`
	SamplingRate      float64   `json:"membrane_potential_sampling_rate"`
}

// CurrentInjection holds the injected-current recording for one cell. The
// StimulusPath column references the derived stimulus bundle persisted by
// the current-stimulus attribute adapter.
type CurrentInjection struct {
	CellKey
	StimulusPath string    `json:"nwb_current_stim"`
	Current      []float64 `json:"current_injection"`
	StartTime    float64   `json:"current_injection_start_time"`
	SamplingRate float64   `json:"current_injection_sampling_rate"`
}
