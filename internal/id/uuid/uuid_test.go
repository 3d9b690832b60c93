package uuid

import (
	"testing"
	"time"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewIDIsTimeOrdered(t *testing.T) {
	t.Parallel()

	gen := New()
	first, err := gen.NewID()
	require.NoError(t, err)
	second, err := gen.NewID()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Less(t, first, second, "v7 ids sort by creation")
	parsed, err := goUUID.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, goUUID.Version(7), parsed.Version())
}

func TestStartedAt(t *testing.T) {
	t.Parallel()

	before := time.Now().UTC().Truncate(time.Millisecond)
	id, err := New().NewID()
	require.NoError(t, err)
	after := time.Now().UTC()

	started, err := StartedAt(id)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, started.Location())
	assert.False(t, started.Before(before), "started %v before %v", started, before)
	assert.False(t, started.After(after), "started %v after %v", started, after)
}

func TestStartedAtRejectsOtherIDs(t *testing.T) {
	t.Parallel()

	_, err := StartedAt("not-a-uuid")
	require.Error(t, err)

	_, err = StartedAt(goUUID.NewString())
	require.ErrorContains(t, err, "not 7")
}
