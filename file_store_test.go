package mqttc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundtrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "sensor-1/outgoing")
	require.NoError(t, err)

	m := Message{Topic: "a/b", QoS: ExactlyOnce, Retain: true, PacketID: 7, Payload: []byte("hi")}
	require.NoError(t, store.Put(m))

	got, err := store.Get(7)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	require.NoError(t, store.Delete(7))
	_, err = store.Get(7)
	assert.ErrorIs(t, err, ErrStorageMiss)
	require.NoError(t, store.Delete(7))
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileStore(dir, "sensor-1/outgoing")
	require.NoError(t, err)
	require.NoError(t, store.Put(Message{Topic: "a", QoS: AtLeastOnce, PacketID: 3, Payload: []byte("x")}))

	reopened, err := NewFileStore(dir, "sensor-1/outgoing")
	require.NoError(t, err)
	got, err := reopened.Get(3)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Topic)
}

func TestFileStoreRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"", "..", "a/../b", "a//b", "."} {
		_, err := NewFileStore(dir, name)
		assert.Error(t, err, "name %q", name)
	}
}
