// Package adapter bridges relational attributes and composite containers:
// encode turns an in-memory container into a durable file reference for a
// relational column, decode turns the stored reference back into the decoded
// value. Three variants exist, differing in destination directory, naming
// key, and whether decode returns the whole container or an extracted
// sub-object.
package adapter

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"icephys/internal/nwb"
)

const containerExt = ".nwb"

// Config names the two stores adapters write to: whole-session containers
// and per-series derived containers.
type Config struct {
	SessionDir string
	SeriesDir  string
}

// Set bundles the three adapter variants over one Config.
type Set struct {
	Session     *SessionFile
	PatchClamp  *PatchClampSeries
	CurrentStim *CurrentClampStimulusSeries
}

// New creates the destination directories (idempotently) and returns the
// adapter set.
func New(cfg Config) (*Set, error) {
	for _, dir := range []string{cfg.SessionDir, cfg.SeriesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create adapter store dir %s", dir)
		}
	}
	return &Set{
		Session:     &SessionFile{dir: cfg.SessionDir},
		PatchClamp:  &PatchClampSeries{series{dir: cfg.SeriesDir, typeTag: nwb.TypePatchClampSeries}},
		CurrentStim: &CurrentClampStimulusSeries{series{dir: cfg.SeriesDir, typeTag: nwb.TypeCurrentClampStimulusSeries}},
	}, nil
}

// SessionFile persists whole session containers, named by session identity
// alone. Decode returns the full container.
type SessionFile struct {
	dir string
}

// Encode writes f to the session store and returns the path for the
// relational column. The codec writes atomically; on failure nothing remains
// at the destination.
func (a *SessionFile) Encode(f *nwb.File) (string, error) {
	path := filepath.Join(a.dir, f.Identifier+containerExt)
	if err := nwb.Write(path, f, f.Manager()); err != nil {
		return "", errors.Wrapf(err, "persist session container %s", f.Identifier)
	}
	return path, nil
}

// Decode opens the container at path. The value retains an open handle; the
// caller closes it when done.
func (a *SessionFile) Decode(path string) (*nwb.File, error) {
	return nwb.Open(path)
}

// series carries the shared encode/open logic of the two sub-object
// variants: naming by session identity plus series name, persistence through
// the container's own (borrowed) manager so shared objects keep their
// identifiers, and decode-time extraction of the unique typed sub-object.
type series struct {
	dir     string
	typeTag string
}

func (a series) encode(f *nwb.File) (string, error) {
	obj, err := nwb.Extract(f, a.typeTag)
	if err != nil {
		return "", errors.Wrapf(err, "derived container %s", f.Identifier)
	}
	path := filepath.Join(a.dir, f.Identifier+"_"+obj.Name()+containerExt)
	if err := nwb.Write(path, f, f.Manager()); err != nil {
		return "", errors.Wrapf(err, "persist derived container %s", f.Identifier)
	}
	return path, nil
}

func (a series) open(path string) (nwb.Object, error) {
	f, err := nwb.Open(path)
	if err != nil {
		return nil, err
	}
	obj, err := nwb.Extract(f, a.typeTag)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "decode derived container %s", path)
	}
	return obj, nil
}

// PatchClampSeries persists derived patch-clamp bundles; decode extracts the
// unique patch-clamp series from the stored container.
type PatchClampSeries struct {
	series
}

// Encode writes the derived container holding f's unique patch-clamp series
// and returns the path for the relational column.
func (a *PatchClampSeries) Encode(f *nwb.File) (string, error) { return a.encode(f) }

// Decode reopens the derived container and returns its patch-clamp series.
// The series retains the container's open handle; close the series when done.
func (a *PatchClampSeries) Decode(path string) (*nwb.PatchClampSeries, error) {
	obj, err := a.open(path)
	if err != nil {
		return nil, err
	}
	s, ok := obj.(*nwb.PatchClampSeries)
	if !ok {
		return nil, errors.Newf("object in %s is %T, want patch-clamp series", path, obj)
	}
	return s, nil
}

// CurrentClampStimulusSeries persists derived stimulus bundles; decode
// extracts the unique stimulus series from the stored container.
type CurrentClampStimulusSeries struct {
	series
}

// Encode writes the derived container holding f's unique stimulus series and
// returns the path for the relational column.
func (a *CurrentClampStimulusSeries) Encode(f *nwb.File) (string, error) { return a.encode(f) }

// Decode reopens the derived container and returns its stimulus series. The
// series retains the container's open handle; close the series when done.
func (a *CurrentClampStimulusSeries) Decode(path string) (*nwb.CurrentClampStimulusSeries, error) {
	obj, err := a.open(path)
	if err != nil {
		return nil, err
	}
	s, ok := obj.(*nwb.CurrentClampStimulusSeries)
	if !ok {
		return nil, errors.Newf("object in %s is %T, want current-clamp stimulus series", path, obj)
	}
	return s, nil
}
