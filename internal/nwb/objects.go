// Package nwb models the composite scientific containers the pipeline reads
// and emits: a hierarchical file bundling typed sub-objects (timeseries,
// devices, electrodes) under stable object identifiers. The on-disk codec and
// the identifier manager live here as well; higher layers treat both as
// opaque.
package nwb

import "github.com/google/uuid"

// ObjectID is the stable identifier the manager assigns to a contained object.
type ObjectID string

// Neurodata type tags carried by contained objects.
const (
	TypeTimeSeries                 = "TimeSeries"
	TypePatchClampSeries           = "PatchClampSeries"
	TypeCurrentClampStimulusSeries = "CurrentClampStimulusSeries"
	TypeDevice                     = "Device"
	TypeIntracellularElectrode     = "IntracellularElectrode"
)

// Object is a typed sub-object contained in a File.
type Object interface {
	// NeurodataType returns the declared type tag of the object.
	NeurodataType() string
	// Name returns the object's name within its container group.
	Name() string
	// ObjectID returns the identifier assigned by the manager that wrote the
	// object, or the empty ID for objects never persisted.
	ObjectID() ObjectID
}

// Manager assigns and resolves stable object identifiers across related
// containers. Two files written with the same manager agree on the identifier
// of every object they share; this is what keeps cross-references valid when
// a derived container is emitted next to its session root.
type Manager struct {
	ids map[string]ObjectID
}

// NewManager returns an empty identifier manager.
func NewManager() *Manager {
	return &Manager{ids: make(map[string]ObjectID)}
}

func managerKey(typeTag, name string) string { return typeTag + "/" + name }

// resolve returns the identifier for (typeTag, name), assigning a fresh one on
// first use.
func (m *Manager) resolve(typeTag, name string) ObjectID {
	k := managerKey(typeTag, name)
	if id, ok := m.ids[k]; ok {
		return id
	}
	id := ObjectID(uuid.NewString())
	m.ids[k] = id
	return id
}

// adopt records an identifier read back from durable storage so later writes
// through this manager reuse it.
func (m *Manager) adopt(typeTag, name string, id ObjectID) {
	m.ids[managerKey(typeTag, name)] = id
}

// Device describes a recording or stimulation device.
type Device struct {
	name        string
	Description string

	id ObjectID
}

func (d *Device) NeurodataType() string { return TypeDevice }
func (d *Device) Name() string          { return d.name }
func (d *Device) ObjectID() ObjectID    { return d.id }

// IntracellularElectrode describes the electrode a patch-clamp series was
// recorded through.
type IntracellularElectrode struct {
	name        string
	Device      *Device
	Description string
	Filtering   string
	Location    string

	id ObjectID
}

func (e *IntracellularElectrode) NeurodataType() string { return TypeIntracellularElectrode }
func (e *IntracellularElectrode) Name() string          { return e.name }
func (e *IntracellularElectrode) ObjectID() ObjectID    { return e.id }

// TimeSeries is a named numeric sequence with either explicit per-sample
// timestamps (raw acquisition) or a starting time plus fixed rate (derived
// series).
type TimeSeries struct {
	name       string
	Unit       string
	Conversion float64
	Gain       float64
	Data       []float64
	// Timestamps pairs one time value per Data sample; empty for regularly
	// sampled series described by StartingTime and Rate.
	Timestamps   []float64
	StartingTime float64
	Rate         float64

	id   ObjectID
	file *File
}

func (ts *TimeSeries) NeurodataType() string { return TypeTimeSeries }
func (ts *TimeSeries) Name() string          { return ts.name }
func (ts *TimeSeries) ObjectID() ObjectID    { return ts.id }

// Close releases the backing container handle of a series returned by a
// decode. Closing a series built in memory is a no-op.
func (ts *TimeSeries) Close() error {
	if ts.file == nil {
		return nil
	}
	return ts.file.Close()
}

// PatchClampSeries is a membrane potential recording tied to an electrode.
type PatchClampSeries struct {
	TimeSeries
	Electrode *IntracellularElectrode
}

func (s *PatchClampSeries) NeurodataType() string { return TypePatchClampSeries }

// CurrentClampStimulusSeries is an injected-current stimulus tied to an
// electrode.
type CurrentClampStimulusSeries struct {
	PatchClampSeries
}

func (s *CurrentClampStimulusSeries) NeurodataType() string { return TypeCurrentClampStimulusSeries }
