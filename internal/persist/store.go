package persist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pkt.systems/cxconsole/schema"
	"pkt.systems/pslog"
)

const (
	catalogFile  = "models.json"
	sessionsFile = "sessions.json"
)

// CatalogSnapshot captures the model catalog for persistence.
type CatalogSnapshot struct {
	Entries  []schema.ModelEntry `json:"entries"`
	CachedAt time.Time           `json:"cached_at"`
}

// SessionsSnapshot captures the recent sessions list for persistence.
type SessionsSnapshot struct {
	Records []schema.SessionRecord `json:"records"`
}

// Store persists engine caches to disk. Files are keyed by name, not by process,
// so caches survive restarts.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// LoadCatalog reads the cached model catalog.
func (s *Store) LoadCatalog() (CatalogSnapshot, bool, error) {
	var snapshot CatalogSnapshot
	ok, err := s.load(catalogFile, &snapshot)
	if err != nil || !ok {
		return CatalogSnapshot{}, ok, err
	}
	if s.log != nil {
		s.log.Debug("state catalog load ok", "models", len(snapshot.Entries), "cached_at", snapshot.CachedAt)
	}
	return snapshot, true, nil
}

// SaveCatalog writes the model catalog cache.
func (s *Store) SaveCatalog(snapshot CatalogSnapshot) error {
	if err := s.save(catalogFile, snapshot); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Trace("state catalog save ok", "models", len(snapshot.Entries))
	}
	return nil
}

// LoadSessions reads the recent sessions list.
func (s *Store) LoadSessions() (SessionsSnapshot, bool, error) {
	var snapshot SessionsSnapshot
	ok, err := s.load(sessionsFile, &snapshot)
	if err != nil || !ok {
		return SessionsSnapshot{}, ok, err
	}
	if s.log != nil {
		s.log.Debug("state sessions load ok", "records", len(snapshot.Records))
	}
	return snapshot, true, nil
}

// SaveSessions writes the recent sessions list.
func (s *Store) SaveSessions(snapshot SessionsSnapshot) error {
	if err := s.save(sessionsFile, snapshot); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Trace("state sessions save ok", "records", len(snapshot.Records))
	}
	return nil
}

func (s *Store) load(name string, out any) (bool, error) {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("state load miss", "file", name)
			}
			return false, nil
		}
		if s.log != nil {
			s.log.Warn("state load failed", "file", name, "err", err)
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		if s.log != nil {
			s.log.Warn("state load failed", "file", name, "err", err)
		}
		return false, err
	}
	return true, nil
}

func (s *Store) save(name string, value any) error {
	path := filepath.Join(s.dir, name)
	if err := s.writeAtomic(path, value); err != nil {
		if s.log != nil {
			s.log.Warn("state save failed", "file", name, "err", err)
		}
		return err
	}
	return nil
}

func (s *Store) writeAtomic(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "state-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
