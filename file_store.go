package mqttc

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Compile-time check that FileStore implements Store.
var _ Store = (*FileStore)(nil)

// FileStore implements Store using one JSON file per packet id on disk, so
// stored entries outlive the process. The client keeps its in-flight queues
// in memory and does not read back entries left by an earlier process; QoS 1
// messages are never stored. A client needs two
// independent stores; give each its own name under a shared base directory:
//
//	incoming, _ := mqttc.NewFileStore("/var/lib/mqttc", "sensor-1/incoming")
//	outgoing, _ := mqttc.NewFileStore("/var/lib/mqttc", "sensor-1/outgoing")
//
// All operations are synchronous and block until the file system call
// completes.
type FileStore struct {
	dir         string
	permissions os.FileMode
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithPermissions sets the file mode for stored messages. Default is 0644.
func WithPermissions(perm os.FileMode) FileStoreOption {
	return func(s *FileStore) {
		s.permissions = perm
	}
}

// NewFileStore creates (or reopens) a file-backed store rooted at
// baseDir/name. The name may contain forward slashes to build a hierarchy,
// but not path traversal.
func NewFileStore(baseDir, name string, opts ...FileStoreOption) (*FileStore, error) {
	if name == "" {
		return nil, fmt.Errorf("store name cannot be empty")
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return nil, fmt.Errorf("store name %q contains invalid path segment", name)
		}
	}

	s := &FileStore{
		dir:         filepath.Join(baseDir, filepath.FromSlash(name)),
		permissions: 0644,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return s, nil
}

type persistedMessage struct {
	Topic    string `json:"topic"`
	QoS      QoS    `json:"qos"`
	Retain   bool   `json:"retain"`
	PacketID uint16 `json:"packet_id"`
	Payload  []byte `json:"payload"`
}

func (s *FileStore) path(pid uint16) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.json", pid))
}

// Put implements Store. The entry is written to a temporary file first and
// renamed into place so a crash cannot leave a half-written message behind.
func (s *FileStore) Put(m Message) error {
	data, err := json.Marshal(persistedMessage{
		Topic:    m.Topic,
		QoS:      m.QoS,
		Retain:   m.Retain,
		PacketID: m.PacketID,
		Payload:  m.Payload,
	})
	if err != nil {
		return fmt.Errorf("encoding message %d: %w", m.PacketID, err)
	}

	tmp := s.path(m.PacketID) + ".tmp"
	if err := os.WriteFile(tmp, data, s.permissions); err != nil {
		return fmt.Errorf("writing message %d: %w", m.PacketID, err)
	}
	return os.Rename(tmp, s.path(m.PacketID))
}

// Get implements Store.
func (s *FileStore) Get(pid uint16) (Message, error) {
	data, err := os.ReadFile(s.path(pid))
	if errors.Is(err, os.ErrNotExist) {
		return Message{}, ErrStorageMiss
	}
	if err != nil {
		return Message{}, fmt.Errorf("reading message %d: %w", pid, err)
	}
	var p persistedMessage
	if err := json.Unmarshal(data, &p); err != nil {
		return Message{}, fmt.Errorf("decoding message %d: %w", pid, err)
	}
	return Message{
		Topic:    p.Topic,
		QoS:      p.QoS,
		Retain:   p.Retain,
		PacketID: p.PacketID,
		Payload:  p.Payload,
	}, nil
}

// Delete implements Store.
func (s *FileStore) Delete(pid uint16) error {
	err := os.Remove(s.path(pid))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
