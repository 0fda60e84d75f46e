package api

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var errExpired = errors.New("file does not exist or has expired")

// unsafeName matches runs of characters kept out of stored file names
var unsafeName = regexp.MustCompile(`[^A-Za-z0-9 ._-]+`)

// stored is a rendered file awaiting download
type stored struct {
	path     string
	userName string
	expires  time.Time
	timer    *time.Timer
}

// fileStore keeps rendered files on disk for a limited time
type fileStore struct {
	dir string
	ttl time.Duration

	mu    sync.Mutex
	files map[string]*stored
}

func newFileStore(dir string, ttl time.Duration) (*fileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %s: %w", dir, err)
	}
	return &fileStore{
		dir:   dir,
		ttl:   ttl,
		files: map[string]*stored{},
	}, nil
}

// create reserves a new file named after userName and returns its key and
// path. The caller writes the file, then calls commit or discard.
func (s *fileStore) create(userName, ext string) (key, path string) {
	key = uuid.NewString() + "_" + userName + ext
	return key, filepath.Join(s.dir, key)
}

// commit makes key downloadable until the TTL elapses
func (s *fileStore) commit(key, path, userName string) time.Time {
	s.mu.Lock()
	expires := time.Now().Add(s.ttl)
	entry := &stored{path: path, userName: userName, expires: expires}
	s.files[key] = entry
	entry.timer = time.AfterFunc(s.ttl, func() { s.remove(key) })
	s.mu.Unlock()
	return expires
}

func (s *fileStore) discard(path string) {
	_ = os.Remove(path)
}

// lookup returns the path and download name of a live file
func (s *fileStore) lookup(key string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.files[key]
	if !ok || !time.Now().Before(entry.expires) {
		return "", "", errExpired
	}
	return entry.path, entry.userName, nil
}

func (s *fileStore) remove(key string) {
	s.mu.Lock()
	entry, ok := s.files[key]
	delete(s.files, key)
	s.mu.Unlock()
	if ok {
		entry.timer.Stop()
		_ = os.Remove(entry.path)
	}
}

// close removes every stored file
func (s *fileStore) close() {
	s.mu.Lock()
	keys := make([]string, 0, len(s.files))
	for k := range s.files {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	for _, k := range keys {
		s.remove(k)
	}
}

// cleanName reduces a user supplied output name to a safe base name
func cleanName(name, fallback string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.Trim(unsafeName.ReplaceAllString(name, "-"), " .-")
	if name == "" {
		name = fallback
	}
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}
