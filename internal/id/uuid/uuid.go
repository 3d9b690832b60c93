// Package uuid generates run identifiers. Run IDs are UUIDv7, so run
// directories and notifications sort by start time and the start time can be
// recovered from the ID alone.
package uuid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generator implements crawler.IDGenerator.
type Generator struct{}

// New returns a Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a fresh run ID.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}

// StartedAt recovers the creation time embedded in a run ID, in UTC with
// millisecond precision.
func StartedAt(runID string) (time.Time, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse run id %q: %w", runID, err)
	}
	if id.Version() != 7 {
		return time.Time{}, fmt.Errorf("run id %q is version %d, not 7", runID, id.Version())
	}
	sec, nsec := id.Time().UnixTime()
	return time.Unix(sec, nsec).UTC(), nil
}
