package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FSStore is a filesystem-based implementation of Store.
// Layout:
//
//	<base>/
//	  payloads/
//	    chatifier-linux.zip
//	  meta/
//	    chatifier-linux.zip.json
type FSStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewFSStore creates a filesystem-backed artifact store rooted at basePath.
func NewFSStore(basePath string) (*FSStore, error) {
	dirs := []string{
		filepath.Join(basePath, "payloads"),
		filepath.Join(basePath, "meta"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return &FSStore{basePath: basePath}, nil
}

// Put stores a payload under name, replacing any previous upload of that name.
func (fs *FSStore) Put(ctx context.Context, name, runID string, payload []byte) (*Record, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	h := sha256.Sum256(payload)
	record := &Record{
		Name:      name,
		SHA256:    hex.EncodeToString(h[:]),
		Size:      int64(len(payload)),
		RunID:     runID,
		CreatedAt: time.Now(),
	}

	if err := os.WriteFile(fs.payloadPath(name), payload, 0o600); err != nil {
		return nil, fmt.Errorf("write payload: %w", err)
	}

	metaData, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(fs.metaPath(name), metaData, 0o600); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}

	return record, nil
}

// Get retrieves an artifact by name.
func (fs *FSStore) Get(ctx context.Context, name string) (*Record, []byte, error) {
	if err := validateName(name); err != nil {
		return nil, nil, err
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	record, err := fs.readMeta(name)
	if err != nil {
		return nil, nil, err
	}

	payload, err := os.ReadFile(fs.payloadPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound{Name: name}
		}
		return nil, nil, fmt.Errorf("read payload: %w", err)
	}

	return record, payload, nil
}

// List returns records for all stored artifacts, ordered by name.
func (fs *FSStore) List(ctx context.Context) ([]*Record, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(fs.basePath, "meta"))
	if err != nil {
		return nil, fmt.Errorf("read meta directory: %w", err)
	}

	records := make([]*Record, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		record, err := fs.readMeta(name)
		if err != nil {
			continue // Skip unparseable metadata rather than failing the listing
		}
		records = append(records, record)
	}
	return records, nil
}

// Delete removes an artifact by name.
func (fs *FSStore) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, err := os.Stat(fs.metaPath(name)); os.IsNotExist(err) {
		return ErrNotFound{Name: name}
	}

	if err := os.Remove(fs.payloadPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove payload: %w", err)
	}
	if err := os.Remove(fs.metaPath(name)); err != nil {
		return fmt.Errorf("remove metadata: %w", err)
	}
	return nil
}

// Sweep deletes artifacts created before the cutoff.
func (fs *FSStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	records, err := fs.List(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, record := range records {
		if record.CreatedAt.After(cutoff) {
			continue
		}
		if err := fs.Delete(ctx, record.Name); err != nil && !IsNotFound(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Close releases resources. The filesystem store holds none.
func (fs *FSStore) Close() error { return nil }

func (fs *FSStore) payloadPath(name string) string {
	return filepath.Join(fs.basePath, "payloads", name)
}

func (fs *FSStore) metaPath(name string) string {
	return filepath.Join(fs.basePath, "meta", name+".json")
}

func (fs *FSStore) readMeta(name string) (*Record, error) {
	data, err := os.ReadFile(fs.metaPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound{Name: name}
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &record, nil
}

// validateName rejects names that would escape the store directory.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("artifact name is required")
	}
	if strings.Contains(name, "/") || strings.Contains(name, "\\") || strings.Contains(name, "..") {
		return fmt.Errorf("invalid artifact name: %q", name)
	}
	return nil
}
