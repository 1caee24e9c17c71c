package nwb

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"icephys/pkg/domain"
)

// Wire form: the container is flattened to a single object list; group and
// module record where each object hangs in the hierarchy, and links between
// objects are expressed as object identifiers.
type wireFile struct {
	Identifier         string       `json:"identifier"`
	SessionDescription string       `json:"session_description"`
	SessionStartTime   time.Time    `json:"session_start_time"`
	Objects            []wireObject `json:"objects"`
}

type wireObject struct {
	ObjectID      string `json:"object_id"`
	NeurodataType string `json:"neurodata_type"`
	Name          string `json:"name"`
	Group         string `json:"group,omitempty"`
	Module        string `json:"module,omitempty"`

	Description string `json:"description,omitempty"`
	Filtering   string `json:"filtering,omitempty"`
	Location    string `json:"location,omitempty"`
	Device      string `json:"device,omitempty"`
	Electrode   string `json:"electrode,omitempty"`

	Unit         string    `json:"unit,omitempty"`
	Conversion   float64   `json:"conversion"`
	Gain         float64   `json:"gain"`
	Data         []float64 `json:"data,omitempty"`
	Timestamps   []float64 `json:"timestamps,omitempty"`
	StartingTime float64   `json:"starting_time"`
	Rate         float64   `json:"rate"`
}

const (
	groupAcquisition = "acquisition"
	groupAnalysis    = "analysis"
)

// Write serializes f to path using manager m for object identifiers; a nil m
// falls back to the container's own manager. The write goes to a temp file in
// the destination directory and is renamed into place only after a successful
// sync, so a failure part-way leaves nothing at path. Codec failures are
// marked domain.ErrSerialization.
func Write(path string, f *File, m *Manager) error {
	if m == nil {
		m = f.manager
	}
	wf := toWire(f, m)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create container dir for %s", path)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".nwb-*")
	if err != nil {
		return errors.Wrapf(err, "create temp container for %s", path)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(wf); err != nil {
		return errors.Mark(errors.Wrapf(err, "encode container %s", path), domain.ErrSerialization)
	}
	if err := tmp.Sync(); err != nil {
		return errors.Mark(errors.Wrapf(err, "sync container %s", path), domain.ErrSerialization)
	}
	if err := tmp.Close(); err != nil {
		return errors.Mark(errors.Wrapf(err, "close container %s", path), domain.ErrSerialization)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Mark(errors.Wrapf(err, "commit container %s", path), domain.ErrSerialization)
	}
	committed = true
	return nil
}

// Open reads the container at path. The returned File retains the open file
// handle for the duration of its use; the caller owns the value and must
// Close it, including after extracting a sub-object from it.
func Open(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.Mark(errors.Wrapf(err, "open container %s", path), domain.ErrNotFound)
		}
		return nil, errors.Wrapf(err, "open container %s", path)
	}
	data, err := io.ReadAll(fh)
	if err != nil {
		_ = fh.Close()
		return nil, errors.Wrapf(err, "read container %s", path)
	}
	var wf wireFile
	if err := json.Unmarshal(data, &wf); err != nil {
		_ = fh.Close()
		return nil, errors.Wrapf(err, "decode container %s", path)
	}
	f, err := fromWire(wf)
	if err != nil {
		_ = fh.Close()
		return nil, errors.Wrapf(err, "rebuild container %s", path)
	}
	f.backing = fh
	return f, nil
}

func toWire(f *File, m *Manager) wireFile {
	wf := wireFile{
		Identifier:         f.Identifier,
		SessionDescription: f.SessionDescription,
		SessionStartTime:   f.SessionStartTime,
	}
	for _, name := range sortedKeys(f.devices) {
		d := f.devices[name]
		d.id = m.resolve(TypeDevice, name)
		wf.Objects = append(wf.Objects, wireObject{
			ObjectID:      string(d.id),
			NeurodataType: TypeDevice,
			Name:          name,
			Description:   d.Description,
		})
	}
	for _, name := range sortedKeys(f.electrodes) {
		e := f.electrodes[name]
		e.id = m.resolve(TypeIntracellularElectrode, name)
		wo := wireObject{
			ObjectID:      string(e.id),
			NeurodataType: TypeIntracellularElectrode,
			Name:          name,
			Description:   e.Description,
			Filtering:     e.Filtering,
			Location:      e.Location,
		}
		if e.Device != nil {
			wo.Device = string(m.resolve(TypeDevice, e.Device.Name()))
		}
		wf.Objects = append(wf.Objects, wo)
	}
	for _, name := range sortedKeys(f.acquisition) {
		wf.Objects = append(wf.Objects, seriesToWire(f.acquisition[name], groupAcquisition, "", m))
	}
	for _, module := range sortedKeys(f.analysis) {
		for _, name := range sortedKeys(f.analysis[module]) {
			wf.Objects = append(wf.Objects, seriesToWire(f.analysis[module][name], groupAnalysis, module, m))
		}
	}
	return wf
}

func seriesToWire(obj Object, group, module string, m *Manager) wireObject {
	typeTag := obj.NeurodataType()
	wo := wireObject{
		NeurodataType: typeTag,
		Name:          obj.Name(),
		Group:         group,
		Module:        module,
	}
	var ts *TimeSeries
	switch s := obj.(type) {
	case *TimeSeries:
		ts = s
	case *PatchClampSeries:
		ts = &s.TimeSeries
		if s.Electrode != nil {
			wo.Electrode = string(m.resolve(TypeIntracellularElectrode, s.Electrode.Name()))
		}
	case *CurrentClampStimulusSeries:
		ts = &s.TimeSeries
		if s.Electrode != nil {
			wo.Electrode = string(m.resolve(TypeIntracellularElectrode, s.Electrode.Name()))
		}
	}
	ts.id = m.resolve(typeTag, ts.name)
	wo.ObjectID = string(ts.id)
	wo.Unit = ts.Unit
	wo.Conversion = ts.Conversion
	wo.Gain = ts.Gain
	wo.Data = ts.Data
	wo.Timestamps = ts.Timestamps
	wo.StartingTime = ts.StartingTime
	wo.Rate = ts.Rate
	return wo
}

func fromWire(wf wireFile) (*File, error) {
	m := NewManager()
	f := NewFile(wf.Identifier, wf.SessionDescription, wf.SessionStartTime, m)

	byID := make(map[string]Object)

	// Devices and electrodes first so series links resolve regardless of
	// object order on disk.
	for _, wo := range wf.Objects {
		if wo.NeurodataType != TypeDevice {
			continue
		}
		d := &Device{name: wo.Name, Description: wo.Description, id: ObjectID(wo.ObjectID)}
		f.devices[wo.Name] = d
		m.adopt(TypeDevice, wo.Name, d.id)
		byID[wo.ObjectID] = d
	}
	for _, wo := range wf.Objects {
		if wo.NeurodataType != TypeIntracellularElectrode {
			continue
		}
		e := &IntracellularElectrode{
			name:        wo.Name,
			Description: wo.Description,
			Filtering:   wo.Filtering,
			Location:    wo.Location,
			id:          ObjectID(wo.ObjectID),
		}
		if wo.Device != "" {
			d, ok := byID[wo.Device].(*Device)
			if !ok {
				return nil, errors.Newf("electrode %q links to unknown device object %s", wo.Name, wo.Device)
			}
			e.Device = d
		}
		f.electrodes[wo.Name] = e
		m.adopt(TypeIntracellularElectrode, wo.Name, e.id)
		byID[wo.ObjectID] = e
	}
	for _, wo := range wf.Objects {
		switch wo.NeurodataType {
		case TypeDevice, TypeIntracellularElectrode:
			continue
		}
		obj, err := seriesFromWire(f, wo, byID)
		if err != nil {
			return nil, err
		}
		m.adopt(wo.NeurodataType, wo.Name, ObjectID(wo.ObjectID))
		byID[wo.ObjectID] = obj
		switch wo.Group {
		case groupAcquisition:
			f.acquisition[wo.Name] = obj
		case groupAnalysis:
			ts, ok := obj.(*TimeSeries)
			if !ok {
				return nil, errors.Newf("analysis object %q has unexpected type %s", wo.Name, wo.NeurodataType)
			}
			if f.analysis[wo.Module] == nil {
				f.analysis[wo.Module] = make(map[string]*TimeSeries)
			}
			f.analysis[wo.Module][wo.Name] = ts
		default:
			return nil, errors.Newf("object %q has unknown group %q", wo.Name, wo.Group)
		}
	}
	return f, nil
}

func seriesFromWire(f *File, wo wireObject, byID map[string]Object) (Object, error) {
	base := TimeSeries{
		name:         wo.Name,
		Unit:         wo.Unit,
		Conversion:   wo.Conversion,
		Gain:         wo.Gain,
		Data:         wo.Data,
		Timestamps:   wo.Timestamps,
		StartingTime: wo.StartingTime,
		Rate:         wo.Rate,
		id:           ObjectID(wo.ObjectID),
		file:         f,
	}
	electrode := func() (*IntracellularElectrode, error) {
		if wo.Electrode == "" {
			return nil, nil
		}
		e, ok := byID[wo.Electrode].(*IntracellularElectrode)
		if !ok {
			return nil, errors.Newf("series %q links to unknown electrode object %s", wo.Name, wo.Electrode)
		}
		return e, nil
	}
	switch wo.NeurodataType {
	case TypeTimeSeries:
		ts := base
		return &ts, nil
	case TypePatchClampSeries:
		e, err := electrode()
		if err != nil {
			return nil, err
		}
		return &PatchClampSeries{TimeSeries: base, Electrode: e}, nil
	case TypeCurrentClampStimulusSeries:
		e, err := electrode()
		if err != nil {
			return nil, err
		}
		return &CurrentClampStimulusSeries{PatchClampSeries: PatchClampSeries{TimeSeries: base, Electrode: e}}, nil
	default:
		return nil, errors.Newf("unknown neurodata type %q for object %q", wo.NeurodataType, wo.Name)
	}
}
