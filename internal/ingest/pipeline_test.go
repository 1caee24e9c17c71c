package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"icephys/internal/adapter"
	"icephys/internal/archive"
	"icephys/internal/nwb"
	"icephys/internal/store"
	"icephys/pkg/domain"
)

var (
	sessionTime = time.Date(2021, 9, 1, 15, 2, 3, 0, time.UTC)
	sessionKey  = domain.SessionKey{SubjectID: "anm321", SessionTime: sessionTime}
	cellKey     = domain.CellKey{SessionKey: sessionKey, CellID: "cell01"}
)

const sessionIdentifier = "anm321_20210901_150203"

// fixture wires a pipeline over temp directories, a sqlite store, and an
// in-memory archive.
type fixture struct {
	pipeline *Pipeline
	store    *store.Store
	adapters *adapter.Set
	archive  *archive.Memory
	source   string
	series   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sourceDir := filepath.Join(t.TempDir(), "raw")
	require.NoError(t, os.MkdirAll(sourceDir, 0o755))
	seriesDir := filepath.Join(t.TempDir(), "series")

	adapters, err := adapter.New(adapter.Config{
		SessionDir: filepath.Join(t.TempDir(), "sessions"),
		SeriesDir:  seriesDir,
	})
	require.NoError(t, err)

	st, err := store.Open(store.Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "test.db")}, adapters)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	arch := archive.NewMemory()
	return &fixture{
		pipeline: New(st, adapters, sourceDir, arch, nil, NewMetrics(nil)),
		store:    st,
		adapters: adapters,
		archive:  arch,
		source:   sourceDir,
		series:   seriesDir,
	}
}

// writeSource exports the raw acquisition container into the source dir the
// way the rig does, timestamp token embedded in the filename.
func (fx *fixture) writeSource(t *testing.T) {
	t.Helper()
	f := nwb.NewFile(sessionIdentifier, "behavior and ephys", sessionTime, nil)
	require.NoError(t, f.AddAcquisition(f.CreateTimeSeries("lick_trace_L", "a.u.", []float64{0, 1, 0, 1, 0}, []float64{0.5, 1.0, 1.5, 2.0, 2.5})))
	require.NoError(t, f.AddAcquisition(f.CreateTimeSeries("lick_trace_R", "a.u.", []float64{1, 0, 1, 0, 1}, []float64{0.5, 1.0, 1.5, 2.0, 2.5})))
	require.NoError(t, f.AddAcquisition(f.CreateTimeSeries("membrane_potential", "mV", []float64{-65, -64, -63}, []float64{0, 0.25, 0.5})))
	require.NoError(t, f.AddAcquisition(f.CreateTimeSeries("current_injection", "nA", []float64{0, 0.1, 0}, []float64{0, 0.25, 0.5})))
	require.NoError(t, f.AddAnalysisSeries("Vm_wo_spikes", f.CreateTimeSeries("membrane_potential_wo_spike", "mV", []float64{-65, -64.2, -63.4}, []float64{0, 0.25, 0.5})))
	path := filepath.Join(fx.source, "anm321_ephys_20210901_150203.nwb")
	require.NoError(t, nwb.Write(path, f, nil))
}

// seed registers the session container plus the cell and its lookup rows.
func (fx *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	sess := nwb.NewFile(sessionIdentifier, "session root", sessionTime, nil)
	path, err := fx.adapters.Session.Encode(sess)
	require.NoError(t, err)
	require.NoError(t, fx.store.InsertSession(ctx, domain.Session{SessionKey: sessionKey, NWBFilePath: path}))
	require.NoError(t, fx.store.InsertBrainLocation(ctx, domain.BrainLocation{
		BrainLocationKey: domain.BrainLocationKey{Region: "ALM", Hemisphere: domain.HemisphereLeft},
		CoordinateRef:    domain.RefBregma,
		AP:               2.5, ML: -1.5, DV: 0.8,
	}))
	require.NoError(t, fx.store.InsertWholeCellDevice(ctx, domain.WholeCellDevice{Name: "MultiClamp 700B", Description: "amplifier"}))
	require.NoError(t, fx.store.InsertCell(ctx, domain.Cell{
		CellKey:          cellKey,
		CellType:         domain.CellTypeExcitatory,
		BrainLocationKey: domain.BrainLocationKey{Region: "ALM", Hemisphere: domain.HemisphereLeft},
		DeviceName:       "MultiClamp 700B",
	}))
}

func TestPopulateIngestsEverythingMissing(t *testing.T) {
	fx := newFixture(t)
	fx.writeSource(t)
	fx.seed(t)
	ctx := context.Background()

	tally, err := fx.pipeline.Populate(ctx)
	require.NoError(t, err)
	require.Equal(t, Tally{Succeeded: 3, Failed: 0}, tally)

	lick, err := fx.store.FetchLickTrace(ctx, sessionKey)
	require.NoError(t, err)
	require.Equal(t, []float64{0, 1, 0, 1, 0}, lick.Left)
	require.Equal(t, []float64{1, 0, 1, 0, 1}, lick.Right)
	require.Equal(t, 0.5, lick.StartTime)
	require.Equal(t, 2.0, lick.SamplingRate)

	mp, err := fx.store.FetchMembranePotential(ctx, cellKey)
	require.NoError(t, err)
	require.Equal(t, []float64{-65, -64, -63}, mp.Potential)
	require.Equal(t, []float64{-65, -64.2, -63.4}, mp.PotentialWoSpikes)
	require.Equal(t, 0.0, mp.StartTime)
	require.Equal(t, 4.0, mp.SamplingRate)
	require.Equal(t, filepath.Join(fx.series, sessionIdentifier+"_membrane_potential.nwb"), mp.PatchClampPath)

	ci, err := fx.store.FetchCurrentInjection(ctx, cellKey)
	require.NoError(t, err)
	require.Equal(t, []float64{0, 0.1, 0}, ci.Current)
	require.Equal(t, 4.0, ci.SamplingRate)
	require.Equal(t, filepath.Join(fx.series, sessionIdentifier+"_CurrentClampStimulus.nwb"), ci.StimulusPath)

	// The derived containers decode back through the adapters with the cell
	// metadata attached.
	series, err := fx.store.OpenPatchClamp(ctx, cellKey)
	require.NoError(t, err)
	defer func() { _ = series.Close() }()
	require.Equal(t, "mV", series.Unit)
	require.NotNil(t, series.Electrode)
	require.Equal(t, "cell01", series.Electrode.Name())
	require.Contains(t, series.Electrode.Location, "brain_region: ALM")
	require.Contains(t, series.Electrode.Location, "hemisphere: left")
	require.Equal(t, "low-pass: 10kHz", series.Electrode.Filtering)
	require.Equal(t, "MultiClamp 700B", series.Electrode.Device.Name())

	// Both derived containers were replicated.
	infos, err := fx.archive.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.Equal(t, sessionIdentifier+"_CurrentClampStimulus.nwb", infos[0].Key)
	require.Equal(t, sessionIdentifier+"_membrane_potential.nwb", infos[1].Key)
}

func TestPopulateIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	fx.writeSource(t)
	fx.seed(t)
	ctx := context.Background()

	_, err := fx.pipeline.Populate(ctx)
	require.NoError(t, err)

	tally, err := fx.pipeline.Populate(ctx)
	require.NoError(t, err)
	require.Equal(t, Tally{}, tally)

	// Forcing a re-ingest of an already-stored key is rejected, and the
	// stored row survives unchanged.
	before, err := fx.store.FetchLickTrace(ctx, sessionKey)
	require.NoError(t, err)
	err = fx.pipeline.IngestLickTrace(ctx, sessionKey)
	require.ErrorIs(t, err, domain.ErrDuplicateKey)
	after, err := fx.store.FetchLickTrace(ctx, sessionKey)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestDerivedBundlesCarryCellMetadata(t *testing.T) {
	fx := newFixture(t)
	fx.writeSource(t)
	fx.seed(t)
	ctx := context.Background()

	require.NoError(t, fx.pipeline.IngestMembranePotential(ctx, cellKey))
	require.NoError(t, fx.pipeline.IngestCurrentInjection(ctx, cellKey))

	mpSeries, err := fx.store.OpenPatchClamp(ctx, cellKey)
	require.NoError(t, err)
	defer func() { _ = mpSeries.Close() }()
	ciSeries, err := fx.store.OpenCurrentStimulus(ctx, cellKey)
	require.NoError(t, err)
	defer func() { _ = ciSeries.Close() }()

	// Both bundles name the same electrode and device for the cell, and the
	// id stored in each bundle survives its own decode unchanged.
	require.Equal(t, "cell01", mpSeries.Electrode.Name())
	require.Equal(t, "cell01", ciSeries.Electrode.Name())
	require.Equal(t, mpSeries.Electrode.Device.Name(), ciSeries.Electrode.Device.Name())
	require.NotEmpty(t, mpSeries.Electrode.ObjectID())
	require.NotEmpty(t, ciSeries.Electrode.ObjectID())
	require.NotEqual(t, mpSeries.ObjectID(), ciSeries.ObjectID())
	require.Equal(t, "A", ciSeries.Unit)
	require.Equal(t, 1e-9, ciSeries.Conversion)
}

func TestIngestFailsWithoutSourceFile(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t)
	ctx := context.Background()

	err := fx.pipeline.IngestLickTrace(ctx, sessionKey)
	require.ErrorIs(t, err, domain.ErrSourceNotFound)
	_, err = fx.store.FetchLickTrace(ctx, sessionKey)
	require.ErrorIs(t, err, domain.ErrNotFound)

	err = fx.pipeline.IngestMembranePotential(ctx, cellKey)
	require.ErrorIs(t, err, domain.ErrSourceNotFound)
	_, err = fx.store.FetchMembranePotential(ctx, cellKey)
	require.ErrorIs(t, err, domain.ErrNotFound)

	// No derived artifact was produced for the failed keys.
	entries, err := os.ReadDir(fx.series)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestPopulateIsolatesPerKeyFailures(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t) // session registered but no source file exported yet
	ctx := context.Background()

	tally, err := fx.pipeline.Populate(ctx)
	require.NoError(t, err)
	require.Equal(t, Tally{Succeeded: 0, Failed: 3}, tally)

	// Once the export lands, the next run picks everything up.
	fx.writeSource(t)
	tally, err = fx.pipeline.Populate(ctx)
	require.NoError(t, err)
	require.Equal(t, Tally{Succeeded: 3, Failed: 0}, tally)
}

func TestIngestRejectsMalformedTimestamps(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t)
	ctx := context.Background()

	f := nwb.NewFile(sessionIdentifier, "truncated export", sessionTime, nil)
	require.NoError(t, f.AddAcquisition(f.CreateTimeSeries("lick_trace_L", "a.u.", []float64{0}, []float64{0.5})))
	require.NoError(t, f.AddAcquisition(f.CreateTimeSeries("lick_trace_R", "a.u.", []float64{1}, []float64{0.5})))
	require.NoError(t, f.AddAcquisition(f.CreateTimeSeries("membrane_potential", "mV", []float64{-65}, []float64{0})))
	require.NoError(t, nwb.Write(filepath.Join(fx.source, "anm321_20210901_150203.nwb"), f, nil))

	err := fx.pipeline.IngestLickTrace(ctx, sessionKey)
	require.ErrorIs(t, err, domain.ErrMalformedTimestamps)
	_, err = fx.store.FetchLickTrace(ctx, sessionKey)
	require.ErrorIs(t, err, domain.ErrNotFound)

	err = fx.pipeline.IngestMembranePotential(ctx, cellKey)
	require.ErrorIs(t, err, domain.ErrObjectNotFound) // no Vm_wo_spikes module in the export
}

func TestPopulateHonorsCancellation(t *testing.T) {
	fx := newFixture(t)
	fx.writeSource(t)
	fx.seed(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fx.pipeline.Populate(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
