package mqttc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundtrip(t *testing.T) {
	store := NewMemoryStore()

	m := Message{Topic: "a/b", QoS: ExactlyOnce, PacketID: 7, Payload: []byte("hi")}
	require.NoError(t, store.Put(m))

	got, err := store.Get(7)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	// Put overwrites an existing entry.
	m.Payload = []byte("bye")
	require.NoError(t, store.Put(m))
	got, err = store.Get(7)
	require.NoError(t, err)
	assert.Equal(t, []byte("bye"), got.Payload)
}

func TestMemoryStoreMiss(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(42)
	assert.ErrorIs(t, err, ErrStorageMiss)
}

func TestMemoryStoreDeleteIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Put(Message{Topic: "a", QoS: AtLeastOnce, PacketID: 1}))

	require.NoError(t, store.Delete(1))
	require.NoError(t, store.Delete(1))

	_, err := store.Get(1)
	assert.ErrorIs(t, err, ErrStorageMiss)
}
