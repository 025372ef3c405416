package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/termhub/connvault/models"
)

const (
	syncDirBlobFile    = "vault.blob"
	syncDirVersionFile = "vault.version"
)

// syncDirVersionDoc is the sidecar next to the blob file. Keeping the
// version out of the blob lets the adapter check it without decrypting
// anything.
type syncDirVersionDoc struct {
	Version   int64 `json:"version"`
	UpdatedAt int64 `json:"updated_at"` // epoch ms
}

// syncDirAdapter targets a folder mirrored by a generic file-sync tool
// (Dropbox, Drive, Syncthing). The filesystem offers no conditional write,
// so the adapter re-reads the version sidecar right before writing and
// publishes the blob with an atomic rename; the remaining race window is
// accepted and caught as a conflict on the next sync.
type syncDirAdapter struct {
	mu  sync.Mutex
	dir string
}

// NewSyncDirAdapter builds the synced-folder adapter.
func NewSyncDirAdapter() Adapter {
	return &syncDirAdapter{}
}

func (s *syncDirAdapter) ID() models.ProviderID { return models.ProviderSyncDir }

func (s *syncDirAdapter) Connect(_ context.Context, creds models.ProviderCredentials) (models.AccountInfo, error) {
	if creds.Dir == "" {
		return models.AccountInfo{}, fmt.Errorf("%w: sync dir not configured", ErrAuth)
	}
	if err := os.MkdirAll(creds.Dir, 0o700); err != nil {
		return models.AccountInfo{}, fmt.Errorf("%w: create sync dir: %v", ErrNetwork, err)
	}

	s.mu.Lock()
	s.dir = creds.Dir
	s.mu.Unlock()

	return models.AccountInfo{
		ProviderID: models.ProviderSyncDir,
		AccountID:  creds.Dir,
		Label:      filepath.Base(creds.Dir),
	}, nil
}

func (s *syncDirAdapter) Fetch(_ context.Context) (*models.RemoteSnapshot, error) {
	dir, err := s.connectedDir()
	if err != nil {
		return nil, err
	}

	doc, err := s.readVersion(dir)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}

	blob, err := os.ReadFile(filepath.Join(dir, syncDirBlobFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read vault blob: %v", ErrNetwork, err)
	}

	return &models.RemoteSnapshot{
		Blob:      string(blob),
		Version:   doc.Version,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (s *syncDirAdapter) Push(_ context.Context, blob string, expectedVersion int64) (int64, error) {
	dir, err := s.connectedDir()
	if err != nil {
		return 0, err
	}

	doc, err := s.readVersion(dir)
	if err != nil {
		return 0, err
	}

	var current int64
	if doc != nil {
		current = doc.Version
	}
	if current != expectedVersion {
		return 0, fmt.Errorf("%w: expected %d, folder at %d", ErrVersionConflict, expectedVersion, current)
	}

	if err = writeFileAtomic(filepath.Join(dir, syncDirBlobFile), []byte(blob)); err != nil {
		return 0, fmt.Errorf("%w: write vault blob: %v", ErrNetwork, err)
	}

	next := syncDirVersionDoc{Version: expectedVersion + 1, UpdatedAt: time.Now().UnixMilli()}
	payload, err := json.Marshal(next)
	if err != nil {
		return 0, fmt.Errorf("encode version sidecar: %w", err)
	}
	if err = writeFileAtomic(filepath.Join(dir, syncDirVersionFile), payload); err != nil {
		return 0, fmt.Errorf("%w: write version sidecar: %v", ErrNetwork, err)
	}

	return next.Version, nil
}

func (s *syncDirAdapter) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dir = ""
	return nil
}

func (s *syncDirAdapter) connectedDir() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dir == "" {
		return "", ErrNotConnected
	}
	return s.dir, nil
}

func (s *syncDirAdapter) readVersion(dir string) (*syncDirVersionDoc, error) {
	data, err := os.ReadFile(filepath.Join(dir, syncDirVersionFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read version sidecar: %v", ErrNetwork, err)
	}

	var doc syncDirVersionDoc
	if err = json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode version sidecar: %w", err)
	}
	return &doc, nil
}

// writeFileAtomic writes to a temp file in the same directory and renames
// it into place, so a concurrently running file-sync tool never observes a
// half-written document.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".connvault-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err = os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
