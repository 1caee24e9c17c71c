package nwb

import (
	"os"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"icephys/pkg/domain"
)

// File is an in-memory composite container. It groups acquisition series,
// analysis series (nested one level under a named module), devices, and
// electrodes, and carries the manager that assigns object identifiers when
// the container is written.
type File struct {
	Identifier         string
	SessionDescription string
	SessionStartTime   time.Time

	acquisition map[string]Object
	analysis    map[string]map[string]*TimeSeries
	devices     map[string]*Device
	electrodes  map[string]*IntracellularElectrode

	manager *Manager
	backing *os.File
}

// NewFile constructs an empty container. A nil manager gets a fresh one;
// derived containers must instead borrow their root's manager via DeriveFrom.
func NewFile(identifier, description string, start time.Time, m *Manager) *File {
	if m == nil {
		m = NewManager()
	}
	return &File{
		Identifier:         identifier,
		SessionDescription: description,
		SessionStartTime:   start,
		acquisition:        make(map[string]Object),
		analysis:           make(map[string]map[string]*TimeSeries),
		devices:            make(map[string]*Device),
		electrodes:         make(map[string]*IntracellularElectrode),
		manager:            m,
	}
}

// DeriveFrom returns a new empty container sharing sess's identity and
// borrowing its manager, so objects attached to the derived container keep
// identifiers consistent with the session root. The derived container must
// not outlive the use of sess's manager; it does not own it.
func DeriveFrom(sess *File) *File {
	d := NewFile(sess.Identifier, sess.SessionDescription, sess.SessionStartTime, sess.manager)
	return d
}

// Manager returns the identifier manager the container was built or read with.
func (f *File) Manager() *Manager { return f.manager }

// Close releases the backing file handle held since decode. Safe on
// containers built in memory.
func (f *File) Close() error {
	if f.backing == nil {
		return nil
	}
	fh := f.backing
	f.backing = nil
	return fh.Close()
}

// CreateDevice registers a device, returning the existing one if the name is
// already present.
func (f *File) CreateDevice(name, description string) *Device {
	if d, ok := f.devices[name]; ok {
		return d
	}
	d := &Device{name: name, Description: description}
	f.devices[name] = d
	return d
}

// CreateIntracellularElectrode registers an electrode linked to device.
func (f *File) CreateIntracellularElectrode(name string, device *Device, description, filtering, location string) *IntracellularElectrode {
	if e, ok := f.electrodes[name]; ok {
		return e
	}
	e := &IntracellularElectrode{
		name:        name,
		Device:      device,
		Description: description,
		Filtering:   filtering,
		Location:    location,
	}
	f.electrodes[name] = e
	return e
}

// CreateTimeSeries builds a raw series with explicit per-sample timestamps.
func (f *File) CreateTimeSeries(name, unit string, data, timestamps []float64) *TimeSeries {
	return &TimeSeries{name: name, Unit: unit, Conversion: 1.0, Gain: 1.0, Data: data, Timestamps: timestamps}
}

// CreatePatchClampSeries builds a regularly sampled patch-clamp series.
func (f *File) CreatePatchClampSeries(name string, electrode *IntracellularElectrode, unit string, conversion, gain float64, data []float64, startingTime, rate float64) *PatchClampSeries {
	return &PatchClampSeries{
		TimeSeries: TimeSeries{
			name:         name,
			Unit:         unit,
			Conversion:   conversion,
			Gain:         gain,
			Data:         data,
			StartingTime: startingTime,
			Rate:         rate,
		},
		Electrode: electrode,
	}
}

// CreateCurrentClampStimulusSeries builds a regularly sampled stimulus series.
func (f *File) CreateCurrentClampStimulusSeries(name string, electrode *IntracellularElectrode, conversion, gain float64, data []float64, startingTime, rate float64) *CurrentClampStimulusSeries {
	return &CurrentClampStimulusSeries{
		PatchClampSeries: PatchClampSeries{
			TimeSeries: TimeSeries{
				name:         name,
				Unit:         "A",
				Conversion:   conversion,
				Gain:         gain,
				Data:         data,
				StartingTime: startingTime,
				Rate:         rate,
			},
			Electrode: electrode,
		},
	}
}

// AddAcquisition attaches a series under the acquisition group.
func (f *File) AddAcquisition(obj Object) error {
	if _, ok := f.acquisition[obj.Name()]; ok {
		return errors.Newf("acquisition %q already present in container %s", obj.Name(), f.Identifier)
	}
	f.acquisition[obj.Name()] = obj
	return nil
}

// AddAnalysisSeries attaches a series under analysis/<module>.
func (f *File) AddAnalysisSeries(module string, ts *TimeSeries) error {
	series, ok := f.analysis[module]
	if !ok {
		series = make(map[string]*TimeSeries)
		f.analysis[module] = series
	}
	if _, ok := series[ts.Name()]; ok {
		return errors.Newf("analysis %s/%s already present in container %s", module, ts.Name(), f.Identifier)
	}
	series[ts.Name()] = ts
	return nil
}

// AcquisitionSeries returns the raw series stored at acquisition/<name>.
func (f *File) AcquisitionSeries(name string) (*TimeSeries, error) {
	obj, ok := f.acquisition[name]
	if !ok {
		return nil, errors.Mark(errors.Newf("acquisition series %q missing in container %s", name, f.Identifier), domain.ErrObjectNotFound)
	}
	switch s := obj.(type) {
	case *TimeSeries:
		return s, nil
	case *PatchClampSeries:
		return &s.TimeSeries, nil
	case *CurrentClampStimulusSeries:
		return &s.TimeSeries, nil
	default:
		return nil, errors.Newf("acquisition %q holds a %s, not a timeseries", name, obj.NeurodataType())
	}
}

// AnalysisSeries returns the derived series stored at analysis/<module>/<name>.
func (f *File) AnalysisSeries(module, name string) (*TimeSeries, error) {
	series, ok := f.analysis[module]
	if !ok {
		return nil, errors.Mark(errors.Newf("analysis module %q missing in container %s", module, f.Identifier), domain.ErrObjectNotFound)
	}
	ts, ok := series[name]
	if !ok {
		return nil, errors.Mark(errors.Newf("analysis series %s/%s missing in container %s", module, name, f.Identifier), domain.ErrObjectNotFound)
	}
	return ts, nil
}

// Objects returns the flat object index in a stable order: devices,
// electrodes, acquisition series, analysis series, each sorted by name.
func (f *File) Objects() []Object {
	var out []Object
	for _, name := range sortedKeys(f.devices) {
		out = append(out, f.devices[name])
	}
	for _, name := range sortedKeys(f.electrodes) {
		out = append(out, f.electrodes[name])
	}
	for _, name := range sortedKeys(f.acquisition) {
		out = append(out, f.acquisition[name])
	}
	for _, module := range sortedKeys(f.analysis) {
		for _, name := range sortedKeys(f.analysis[module]) {
			out = append(out, f.analysis[module][name])
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
