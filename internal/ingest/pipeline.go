// Package ingest reads raw session recordings, derives per-cell composite
// bundles, and writes the normalized rows. One key is fully ingested
// (resolve, read, derive, persist, insert) before the next begins; every
// failure aborts only the key being processed.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"icephys/internal/adapter"
	"icephys/internal/archive"
	"icephys/internal/nwb"
	"icephys/internal/sessionfile"
	"icephys/internal/store"
	"icephys/pkg/domain"
)

// Series and metadata constants mirrored from the acquisition rig's export
// conventions.
const (
	seriesLickLeft     = "lick_trace_L"
	seriesLickRight    = "lick_trace_R"
	seriesMembranePot  = "membrane_potential"
	seriesCurrentInj   = "current_injection"
	analysisModuleVm   = "Vm_wo_spikes"
	seriesVmWoSpike    = "membrane_potential_wo_spike"
	seriesStimulusName = "CurrentClampStimulus"

	electrodeFiltering = "low-pass: 10kHz"

	// Recorded potentials arrive in mV, injected currents in nA.
	conversionMilli = 1e-3
	conversionNano  = 1e-9
	defaultGain     = 1.0
)

// Pipeline wires the locator, adapters, and store into the three ingestion
// routines and their batch driver.
type Pipeline struct {
	store     *store.Store
	adapters  *adapter.Set
	sourceDir string
	archive   archive.Store
	log       *zap.SugaredLogger
	metrics   *Metrics
}

// New constructs a pipeline reading source files from sourceDir. archive may
// be nil to disable replication, metrics may be nil, and a nil logger is
// replaced with a nop logger.
func New(st *store.Store, adapters *adapter.Set, sourceDir string, arch archive.Store, log *zap.SugaredLogger, metrics *Metrics) *Pipeline {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Pipeline{
		store:     st,
		adapters:  adapters,
		sourceDir: sourceDir,
		archive:   arch,
		log:       log,
		metrics:   metrics,
	}
}

// openSource resolves and opens the session source container for a key.
// Callers close the returned file on every exit path.
func (p *Pipeline) openSource(ctx context.Context, key domain.SessionKey) (*nwb.File, error) {
	path, err := sessionfile.Locate(ctx, p.sourceDir, key.SubjectID, key.SessionTime)
	if err != nil {
		return nil, err
	}
	return nwb.Open(path)
}

// IngestLickTrace reads the behavioral lick signals for one session and
// inserts its row. No derived artifact is produced.
func (p *Pipeline) IngestLickTrace(ctx context.Context, key domain.SessionKey) error {
	started := time.Now()
	err := p.ingestLickTrace(ctx, key)
	p.metrics.observe("lick_trace", err, time.Since(started))
	return err
}

func (p *Pipeline) ingestLickTrace(ctx context.Context, key domain.SessionKey) error {
	src, err := p.openSource(ctx, key)
	if err != nil {
		return errors.Wrapf(err, "lick trace ingest for %s", key)
	}
	defer func() { _ = src.Close() }()

	p.log.Infow("Ingesting behavioral data", "subject", key.SubjectID, "session", key.SessionTime)

	left, err := src.AcquisitionSeries(seriesLickLeft)
	if err != nil {
		return errors.Wrapf(err, "lick trace ingest for %s", key)
	}
	right, err := src.AcquisitionSeries(seriesLickRight)
	if err != nil {
		return errors.Wrapf(err, "lick trace ingest for %s", key)
	}
	rate, err := samplingRate(right.Timestamps)
	if err != nil {
		return errors.Wrapf(err, "lick trace ingest for %s", key)
	}
	return p.store.InsertLickTrace(ctx, domain.LickTrace{
		SessionKey:   key,
		Left:         left.Data,
		Right:        right.Data,
		StartTime:    right.Timestamps[0],
		SamplingRate: rate,
	})
}

// IngestMembranePotential reads the patch-clamp recording for one cell,
// derives its composite bundle on a copy of the session root, persists the
// bundle through the patch-clamp adapter, and inserts the row.
func (p *Pipeline) IngestMembranePotential(ctx context.Context, key domain.CellKey) error {
	started := time.Now()
	err := p.ingestMembranePotential(ctx, key)
	p.metrics.observe("membrane_potential", err, time.Since(started))
	return err
}

func (p *Pipeline) ingestMembranePotential(ctx context.Context, key domain.CellKey) error {
	src, err := p.openSource(ctx, key.SessionKey)
	if err != nil {
		return errors.Wrapf(err, "membrane potential ingest for %s", key)
	}
	defer func() { _ = src.Close() }()

	p.log.Infow("Ingesting intracellular data",
		"subject", key.SubjectID, "session", key.SessionTime, "cell", key.CellID)

	mp, err := src.AcquisitionSeries(seriesMembranePot)
	if err != nil {
		return errors.Wrapf(err, "membrane potential ingest for %s", key)
	}
	woSpike, err := src.AnalysisSeries(analysisModuleVm, seriesVmWoSpike)
	if err != nil {
		return errors.Wrapf(err, "membrane potential ingest for %s", key)
	}
	rate, err := samplingRate(mp.Timestamps)
	if err != nil {
		return errors.Wrapf(err, "membrane potential ingest for %s", key)
	}
	start := mp.Timestamps[0]

	derived, err := p.deriveBundle(ctx, key, func(f *nwb.File, electrode *nwb.IntracellularElectrode) error {
		series := f.CreatePatchClampSeries(seriesMembranePot, electrode, "mV", conversionMilli, defaultGain, mp.Data, start, rate)
		return f.AddAcquisition(series)
	})
	if err != nil {
		return errors.Wrapf(err, "membrane potential ingest for %s", key)
	}

	path, err := p.adapters.PatchClamp.Encode(derived)
	if err != nil {
		return errors.Wrapf(err, "membrane potential ingest for %s", key)
	}
	row := domain.MembranePotential{
		CellKey:           key,
		PatchClampPath:    path,
		Potential:         mp.Data,
		PotentialWoSpikes: woSpike.Data,
		StartTime:         start,
		SamplingRate:      rate,
	}
	if err := p.store.InsertMembranePotential(ctx, row); err != nil {
		return err
	}
	p.replicate(ctx, path)
	return nil
}

// IngestCurrentInjection reads the injected-current recording for one cell,
// derives its stimulus bundle, persists it through the current-stimulus
// adapter, and inserts the row.
func (p *Pipeline) IngestCurrentInjection(ctx context.Context, key domain.CellKey) error {
	started := time.Now()
	err := p.ingestCurrentInjection(ctx, key)
	p.metrics.observe("current_injection", err, time.Since(started))
	return err
}

func (p *Pipeline) ingestCurrentInjection(ctx context.Context, key domain.CellKey) error {
	src, err := p.openSource(ctx, key.SessionKey)
	if err != nil {
		return errors.Wrapf(err, "current injection ingest for %s", key)
	}
	defer func() { _ = src.Close() }()

	p.log.Infow("Ingesting intracellular data",
		"subject", key.SubjectID, "session", key.SessionTime, "cell", key.CellID)

	ci, err := src.AcquisitionSeries(seriesCurrentInj)
	if err != nil {
		return errors.Wrapf(err, "current injection ingest for %s", key)
	}
	rate, err := samplingRate(ci.Timestamps)
	if err != nil {
		return errors.Wrapf(err, "current injection ingest for %s", key)
	}
	start := ci.Timestamps[0]

	derived, err := p.deriveBundle(ctx, key, func(f *nwb.File, electrode *nwb.IntracellularElectrode) error {
		series := f.CreateCurrentClampStimulusSeries(seriesStimulusName, electrode, conversionNano, defaultGain, ci.Data, start, rate)
		return f.AddAcquisition(series)
	})
	if err != nil {
		return errors.Wrapf(err, "current injection ingest for %s", key)
	}

	path, err := p.adapters.CurrentStim.Encode(derived)
	if err != nil {
		return errors.Wrapf(err, "current injection ingest for %s", key)
	}
	row := domain.CurrentInjection{
		CellKey:      key,
		StimulusPath: path,
		Current:      ci.Data,
		StartTime:    start,
		SamplingRate: rate,
	}
	if err := p.store.InsertCurrentInjection(ctx, row); err != nil {
		return err
	}
	p.replicate(ctx, path)
	return nil
}

// deriveBundle builds a derived container for a cell: a copy of the session
// root borrowing its manager, carrying the cell's device and electrode, plus
// whatever series attach adds. Sharing the root's manager keeps object
// identifiers consistent across every bundle derived from the same session.
func (p *Pipeline) deriveBundle(ctx context.Context, key domain.CellKey, attach func(*nwb.File, *nwb.IntracellularElectrode) error) (*nwb.File, error) {
	cell, err := p.store.FetchCell(ctx, key)
	if err != nil {
		return nil, err
	}
	loc, err := p.store.FetchBrainLocation(ctx, cell.BrainLocationKey)
	if err != nil {
		return nil, err
	}
	dev, err := p.store.FetchWholeCellDevice(ctx, cell.DeviceName)
	if err != nil {
		return nil, err
	}
	sess, err := p.store.OpenSessionFile(ctx, key.SessionKey)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sess.Close() }()

	derived := nwb.DeriveFrom(sess)
	device := derived.CreateDevice(dev.Name, dev.Description)
	electrode := derived.CreateIntracellularElectrode(cell.CellID, device, "N/A", electrodeFiltering, locationText(loc))
	if err := attach(derived, electrode); err != nil {
		return nil, err
	}
	return derived, nil
}

// locationText flattens a brain location row into the electrode location
// string carried inside derived containers.
func locationText(loc domain.BrainLocation) string {
	return fmt.Sprintf("brain_region: %s; hemisphere: %s; coordinate_ref: %s; coordinate_ap: %.2f; coordinate_ml: %.2f; coordinate_dv: %.2f",
		loc.Region, loc.Hemisphere, loc.CoordinateRef, loc.AP, loc.ML, loc.DV)
}

// replicate copies an encoded derived container into the archive backend.
// Best effort: the relational row is the source of truth, so failures are
// logged and ingestion continues.
func (p *Pipeline) replicate(ctx context.Context, path string) {
	if p.archive == nil {
		return
	}
	if err := archive.PutFile(ctx, p.archive, path); err != nil {
		p.log.Warnw("Archive replication failed", "path", path, "error", err)
	}
}
