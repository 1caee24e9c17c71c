package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"icephys/pkg/domain"
)

func TestSamplingRate(t *testing.T) {
	rate, err := samplingRate([]float64{0, 0.5, 1.0, 1.5})
	require.NoError(t, err)
	require.Equal(t, 2.0, rate)

	rate, err = samplingRate([]float64{10, 10.25})
	require.NoError(t, err)
	require.Equal(t, 4.0, rate)
}

func TestSamplingRateIgnoresJitter(t *testing.T) {
	// The mean interval telescopes to (last-first)/(n-1), so interior jitter
	// does not move the derived rate.
	rate, err := samplingRate([]float64{0, 0.4, 1.1, 1.5})
	require.NoError(t, err)
	require.Equal(t, 2.0, rate)
}

func TestSamplingRateTooFewSamples(t *testing.T) {
	_, err := samplingRate(nil)
	require.ErrorIs(t, err, domain.ErrMalformedTimestamps)
	_, err = samplingRate([]float64{1.0})
	require.ErrorIs(t, err, domain.ErrMalformedTimestamps)
}

func TestSamplingRateNonIncreasing(t *testing.T) {
	_, err := samplingRate([]float64{1.0, 1.0})
	require.ErrorIs(t, err, domain.ErrMalformedTimestamps)
	_, err = samplingRate([]float64{2.0, 1.0})
	require.ErrorIs(t, err, domain.ErrMalformedTimestamps)
}
