package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "run/final_results.json", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://run/final_results.json", uri)

	payload[0] = 'C'
	stored, ok := store.Get("run/final_results.json")
	require.True(t, ok)
	assert.Equal(t, "content", string(stored))

	stored[0] = 'X'
	again, _ := store.Get("run/final_results.json")
	assert.Equal(t, "content", string(again), "Get returns a copy")
}

func TestBlobStoreKeys(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, k := range []string{"b.json", "a.json", "c/d.json"} {
		_, err := store.PutObject(context.Background(), k, "", bytes.NewReader(nil))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a.json", "b.json", "c/d.json"}, store.Keys())

	_, ok := store.Get("missing.json")
	assert.False(t, ok)
}
