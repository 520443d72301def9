package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	clierr "github.com/ggonzalez94/bridge-cli/internal/errors"
	"github.com/ggonzalez94/bridge-cli/internal/model"
)

const schemaVersion = 1

// persistedState is the on-disk document: the live bundle slot plus the id
// of the most recently executed bundle. Executed bundles live in their own
// per-id files under the executed directory.
type persistedState struct {
	Version              int                  `json:"version"`
	LastRequestedBundle  *model.RequestBundle `json:"last_requested_bundle"`
	LastExecutedBundleID *string              `json:"last_executed_bundle_id"`
}

// Store owns the bridge state files. A single live process per data
// directory is assumed; the flock guards against accidental concurrent
// invocations, not designed-for concurrency.
type Store struct {
	path        string
	executedDir string
	lock        *flock.Flock
	log         *logrus.Entry
}

func OpenStore(path, lockPath, executedDir string, log *logrus.Logger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	for _, dir := range []string{filepath.Dir(path), filepath.Dir(lockPath), executedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	return &Store{
		path:        path,
		executedDir: executedDir,
		lock:        flock.New(lockPath),
		log:         log.WithField("component", "store"),
	}, nil
}

// Read loads the persisted state. A missing file yields the fresh default;
// a corrupt or schema-mismatched file is renamed aside and replaced by the
// default, so startup never fails on bad data.
func (s *Store) Read() (persistedState, error) {
	fresh := persistedState{Version: schemaVersion}
	buf, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fresh, nil
		}
		return persistedState{}, fmt.Errorf("read bridge state: %w", err)
	}

	var st persistedState
	if err := json.Unmarshal(buf, &st); err != nil {
		s.quarantine(fmt.Sprintf("unparseable state file: %v", err))
		return fresh, nil
	}
	if st.Version != schemaVersion {
		s.quarantine(fmt.Sprintf("state schema version %d, want %d", st.Version, schemaVersion))
		return fresh, nil
	}
	return st, nil
}

func (s *Store) quarantine(reason string) {
	aside := fmt.Sprintf("%s.corrupt.%d", s.path, time.Now().Unix())
	if err := os.Rename(s.path, aside); err != nil {
		s.log.Warnf("quarantine state file: %v", err)
		return
	}
	s.log.WithField("moved_to", aside).Warnf("discarded bridge state: %s", reason)
}

// Write persists the state atomically under the store lock.
func (s *Store) Write(st persistedState) error {
	st.Version = schemaVersion
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock bridge state: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock bridge state: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	return writeJSONAtomic(s.path, st)
}

func (s *Store) executedPath(bundleID string) string {
	return filepath.Join(s.executedDir, bundleID+".json")
}

// SaveExecuted writes an archived bundle to its per-id file.
func (s *Store) SaveExecuted(bundle *model.RequestBundle) error {
	if bundle == nil {
		return clierr.New(clierr.CodeInternal, "cannot archive a nil bundle")
	}
	return writeJSONAtomic(s.executedPath(bundle.ID), bundle)
}

// LoadExecuted reads an archived bundle by id.
func (s *Store) LoadExecuted(bundleID string) (*model.RequestBundle, error) {
	buf, err := os.ReadFile(s.executedPath(bundleID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, clierr.New(clierr.CodeNotFound, "bundle "+bundleID+" not found")
		}
		return nil, fmt.Errorf("read archived bundle: %w", err)
	}
	var bundle model.RequestBundle
	if err := json.Unmarshal(buf, &bundle); err != nil {
		return nil, fmt.Errorf("decode archived bundle %s: %w", bundleID, err)
	}
	return &bundle, nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
