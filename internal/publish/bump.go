package publish

import (
	"github.com/frederic-klein/yapm/internal/version"
)

// Default pre-release track used when a bump does not name one.
const (
	DefaultPreID     = "pre"
	DefaultSeparator = "."
)

// Bump describes how to derive the next version from the current one.
// Use NoBump rather than the zero value, whose field is Major.
type Bump struct {
	Field     version.Field
	Pre       bool
	PreID     string
	Separator string
}

// NoBump keeps the current version.
var NoBump = Bump{Field: version.None}

// Apply returns the bumped version.
//
//	Field  Pre    result
//	None   false  v unchanged
//	F      false  v with F incremented
//	None   true   next pre-release on the current track, or a new track
//	F      true   F incremented, new track at 0
func (b Bump) Apply(v version.Version) (version.Version, error) {
	if !b.Pre {
		if b.Field == version.None {
			return v, nil
		}
		return v.Increment(b.Field)
	}
	id, sep := b.PreID, b.Separator
	if id == "" {
		id = DefaultPreID
		if v.HasPre() {
			id = v.PreID()
		}
	}
	if sep == "" {
		sep = DefaultSeparator
		if v.HasPre() {
			sep = v.PreSeparator()
		}
	}
	return v.PreIncrement(b.Field, id, sep)
}

// IsZero reports whether the bump leaves the version unchanged.
func (b Bump) IsZero() bool {
	return !b.Pre && b.Field == version.None
}
