package pipeline

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts capture ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// ULIDGenerator produces time-sortable ULIDs for capture IDs.
type ULIDGenerator struct{}

func (ULIDGenerator) New() string { return ulid.Make().String() }
