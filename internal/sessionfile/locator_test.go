package sessionfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"icephys/pkg/domain"
)

var sessionTime = time.Date(2021, 9, 1, 15, 2, 3, 0, time.UTC)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
}

func TestLocateUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "anm321_behavior_20210901_150203_v2.nwb")
	touch(t, dir, "anm321_behavior_20210901_160000.nwb") // different time
	touch(t, dir, "anm999_behavior_20210901_150203.nwb") // different subject
	touch(t, dir, "anm321_notes_20210901_150203.txt")    // wrong extension
	touch(t, dir, "README.md")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "anm321_20210901_150203.nwb"), 0o755))

	path, err := Locate(context.Background(), dir, "anm321", sessionTime)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "anm321_behavior_20210901_150203_v2.nwb"), path)
}

func TestLocateSubSecondTimesMatchOnTruncation(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "anm321_20210901_150203.nwb")

	path, err := Locate(context.Background(), dir, "anm321", sessionTime.Add(400*time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "anm321_20210901_150203.nwb"), path)
}

func TestLocateNoMatch(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "anm321_20210901_160000.nwb")

	_, err := Locate(context.Background(), dir, "anm321", sessionTime)
	require.ErrorIs(t, err, domain.ErrSourceNotFound)
}

func TestLocateAmbiguousMatch(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "anm321_20210901_150203.nwb")
	touch(t, dir, "anm321_copy_20210901_150203.nwb")

	_, err := Locate(context.Background(), dir, "anm321", sessionTime)
	require.ErrorIs(t, err, domain.ErrSourceNotFound)
}

func TestLocateMissingDirectory(t *testing.T) {
	_, err := Locate(context.Background(), filepath.Join(t.TempDir(), "absent"), "anm321", sessionTime)
	require.Error(t, err)
	require.False(t, errors.Is(err, domain.ErrSourceNotFound))
}

func TestLocateHonorsCancellation(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "anm321_20210901_150203.nwb")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Locate(ctx, dir, "anm321", sessionTime)
	require.ErrorIs(t, err, context.Canceled)
}
