package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessioncore/storage"
)

func TestPutGet(t *testing.T) {
	r := NewRepository()
	require.NoError(t, r.Put("sessions", "a", []byte("one")))

	got, err := r.Get("sessions", "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)
}

func TestGetMissing(t *testing.T) {
	r := NewRepository()

	_, err := r.Get("sessions", "missing")
	assert.ErrorIs(t, err, storage.ErrBucketNotFound)

	require.NoError(t, r.Put("sessions", "a", []byte("one")))
	_, err = r.Get("sessions", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDelete(t *testing.T) {
	r := NewRepository()
	require.NoError(t, r.Put("sessions", "a", []byte("one")))
	require.NoError(t, r.Delete("sessions", "a"))

	_, err := r.Get("sessions", "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = r.Delete("sessions", "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestList(t *testing.T) {
	r := NewRepository()
	keys, err := r.List("empty")
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, r.Put("sessions", "b", []byte("two")))
	require.NoError(t, r.Put("sessions", "a", []byte("one")))

	keys, err = r.List("sessions")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestValueIsolation(t *testing.T) {
	r := NewRepository()
	value := []byte("mutable")
	require.NoError(t, r.Put("sessions", "a", value))
	value[0] = 'X'

	got, err := r.Get("sessions", "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("mutable"), got)
}
