// Package sessionfile resolves the one composite source file that belongs to
// a (subject, session time) pair among the exported files of a data
// directory.
package sessionfile

import (
	"context"
	"path/filepath"
	"regexp"
	"time"

	"github.com/cockroachdb/errors"

	"icephys/pkg/domain"
)

// Exported session files embed their session time as a YYYYMMDD_HHMMSS token
// somewhere in the filename, e.g. anm321_behavior_20210901_150203_v2.nwb.
var timestampToken = regexp.MustCompile(`\d{8}_\d{6}`)

const timestampLayout = "20060102_150405"

// Locate scans dir (non-recursively) for the single .nwb file whose name
// starts with "<subjectID>_" and embeds a timestamp token equal to ts
// truncated to the second; filenames store no finer resolution, so that is
// the matching tolerance. Extraneous files are ignored. Zero candidates and
// more than one candidate both resolve to ErrSourceNotFound: the locator
// never guesses. The scan honors ctx cancellation.
func Locate(ctx context.Context, dir, subjectID string, ts time.Time) (string, error) {
	entries, err := readDir(dir)
	if err != nil {
		return "", errors.Wrapf(err, "scan session data dir %s", dir)
	}
	want := ts.Format(timestampLayout)
	prefix := subjectID + "_"

	var matches []string
	for _, name := range entries {
		if err := ctx.Err(); err != nil {
			return "", errors.Wrapf(err, "session file scan interrupted in %s", dir)
		}
		if filepath.Ext(name) != ".nwb" {
			continue
		}
		if len(name) < len(prefix) || name[:len(prefix)] != prefix {
			continue
		}
		token := timestampToken.FindString(name)
		if token != want {
			continue
		}
		matches = append(matches, name)
	}
	switch len(matches) {
	case 1:
		return filepath.Join(dir, matches[0]), nil
	case 0:
		return "", errors.Mark(
			errors.Newf("no session file for subject %s at %s in %s", subjectID, want, dir),
			domain.ErrSourceNotFound)
	default:
		return "", errors.Mark(
			errors.Newf("%d session files for subject %s at %s in %s", len(matches), subjectID, want, dir),
			domain.ErrSourceNotFound)
	}
}
