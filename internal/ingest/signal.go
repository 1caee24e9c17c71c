package ingest

import (
	"github.com/cockroachdb/errors"

	"icephys/pkg/domain"
)

// samplingRate derives the acquisition rate as the reciprocal of the mean
// inter-sample interval. The mean of consecutive differences telescopes to
// (last-first)/(n-1), so the derivation is exact for regularly sampled
// sequences. Fewer than two samples leaves the rate undefined and is an
// ingestion error, never a silent default.
func samplingRate(timestamps []float64) (float64, error) {
	if len(timestamps) < 2 {
		return 0, errors.Mark(
			errors.Newf("sampling rate undefined for %d timestamp samples", len(timestamps)),
			domain.ErrMalformedTimestamps)
	}
	mean := (timestamps[len(timestamps)-1] - timestamps[0]) / float64(len(timestamps)-1)
	if mean <= 0 {
		return 0, errors.Mark(
			errors.Newf("non-increasing timestamp sequence (mean interval %g)", mean),
			domain.ErrMalformedTimestamps)
	}
	return 1 / mean, nil
}
