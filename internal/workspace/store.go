package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/werf/lockgate"
	"github.com/werf/lockgate/pkg/file_locker"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrParentNotFound  = errors.New("parent session not found")
	ErrStoreLock       = errors.New("cannot acquire workspace lock")
)

// FileStore persists the workspace as a JSON document on disk. All access is
// read-modify-write under both an in-process mutex and a lockgate file lock,
// so concurrent derivation pipelines touching different sessions in the same
// collection never lose updates.
type FileStore struct {
	path   string
	mu     sync.Mutex
	locker lockgate.Locker
}

func NewFileStore(baseDir, selfName string) (*FileStore, error) {
	lockDir := path.Join(baseDir, fmt.Sprintf(".%s-lock", selfName))
	locker, err := file_locker.NewFileLocker(lockDir)
	if err != nil {
		return nil, fmt.Errorf("cannot setup lock dir: %s", lockDir)
	}
	return &FileStore{
		path:   path.Join(baseDir, fmt.Sprintf(".%s-workspace.json", selfName)),
		locker: locker,
	}, nil
}

func (f *FileStore) ensureLock() (func(), error) {
	acquired, lock, err := f.locker.Acquire("workspace", lockgate.AcquireOptions{Shared: false, Timeout: 1 * time.Minute})
	if err != nil || !acquired {
		return nil, fmt.Errorf("%s, %w", err, ErrStoreLock)
	}
	return func() {
		_ = f.locker.Release(lock)
	}, nil
}

// GetWorkspace loads the workspace document. A missing file yields an empty
// workspace rather than an error.
func (f *FileStore) GetWorkspace() (*Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *FileStore) load() (*Workspace, error) {
	release, err := f.ensureLock()
	if err != nil {
		return nil, err
	}
	defer release()

	ws := &Workspace{}
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ws, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(b, ws); err != nil {
		return nil, err
	}
	return ws, nil
}

// UpdateWorkspace replaces the persisted document.
func (f *FileStore) UpdateWorkspace(ws *Workspace) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(ws)
}

func (f *FileStore) save(ws *Workspace) error {
	release, err := f.ensureLock()
	if err != nil {
		return err
	}
	defer release()

	b, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, b, 0600)
}

// MutateSession applies fn to the named session under the store lock and
// persists the result, so flag updates from concurrent pipelines do not
// clobber each other.
func (f *FileStore) MutateSession(id string, fn func(*Session)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ws, err := f.load()
	if err != nil {
		return err
	}
	sess := ws.FindSession(id)
	if sess == nil {
		return fmt.Errorf("%s, %w", id, ErrSessionNotFound)
	}
	fn(sess)
	return f.save(ws)
}

// ParentSession resolves a truster session's seeding session by id.
func (f *FileStore) ParentSession(s *Session) (*Session, error) {
	ws, err := f.GetWorkspace()
	if err != nil {
		return nil, err
	}
	parent := ws.FindSession(s.Account.ParentID)
	if parent == nil {
		return nil, fmt.Errorf("%s, %w", s.Account.ParentID, ErrParentNotFound)
	}
	return parent, nil
}

// AddSession appends a new session slot, assigning an id when absent.
func (f *FileStore) AddSession(s Session) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	ws, err := f.load()
	if err != nil {
		return "", err
	}
	ws.Sessions = append(ws.Sessions, s)
	return s.ID, f.save(ws)
}
