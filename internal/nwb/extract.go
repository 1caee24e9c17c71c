package nwb

import (
	"github.com/cockroachdb/errors"

	"icephys/pkg/domain"
)

// Extract scans the container's flat object index for the single object whose
// declared type equals typeTag. Zero matches is ErrObjectNotFound; more than
// one is ErrAmbiguousObject. Multiplicity is treated as a data-integrity
// error of the container, never resolved by picking the first match.
func Extract(f *File, typeTag string) (Object, error) {
	var found Object
	for _, obj := range f.Objects() {
		if obj.NeurodataType() != typeTag {
			continue
		}
		if found != nil {
			return nil, errors.Mark(
				errors.Newf("container %s holds more than one %s", f.Identifier, typeTag),
				domain.ErrAmbiguousObject)
		}
		found = obj
	}
	if found == nil {
		return nil, errors.Mark(
			errors.Newf("container %s holds no %s", f.Identifier, typeTag),
			domain.ErrObjectNotFound)
	}
	return found, nil
}
