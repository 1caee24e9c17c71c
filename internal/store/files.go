package store

import (
	"context"

	"github.com/cockroachdb/errors"

	"icephys/internal/nwb"
	"icephys/pkg/domain"
)

// Decode-on-read access to the file-reference columns: each helper fetches
// the row holding the path and runs the matching adapter decode, so callers
// see the decoded composite value rather than a path string. Returned values
// hold an open handle; the caller closes them.

func (s *Store) requireAdapters() error {
	if s.adapters == nil {
		return errors.New("store opened without adapters; file-reference columns cannot be decoded")
	}
	return nil
}

// OpenSessionFile returns the decoded session container for key.
func (s *Store) OpenSessionFile(ctx context.Context, key domain.SessionKey) (*nwb.File, error) {
	if err := s.requireAdapters(); err != nil {
		return nil, err
	}
	row, err := s.FetchSession(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.adapters.Session.Decode(row.NWBFilePath)
}

// OpenPatchClamp returns the decoded patch-clamp series for key.
func (s *Store) OpenPatchClamp(ctx context.Context, key domain.CellKey) (*nwb.PatchClampSeries, error) {
	if err := s.requireAdapters(); err != nil {
		return nil, err
	}
	row, err := s.FetchMembranePotential(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.adapters.PatchClamp.Decode(row.PatchClampPath)
}

// OpenCurrentStimulus returns the decoded stimulus series for key.
func (s *Store) OpenCurrentStimulus(ctx context.Context, key domain.CellKey) (*nwb.CurrentClampStimulusSeries, error) {
	if err := s.requireAdapters(); err != nil {
		return nil, err
	}
	row, err := s.FetchCurrentInjection(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.adapters.CurrentStim.Decode(row.StimulusPath)
}
