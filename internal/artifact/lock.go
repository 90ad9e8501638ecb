package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ErrLocked means another run holds the target's lock.
var ErrLocked = errors.New("target is locked by another run")

const (
	breakGuardTTL   = 30 * time.Second
	unreadableGrace = 5 * time.Second
)

// LockInfo is the content of a lock file.
type LockInfo struct {
	Owner      string    `json:"owner"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Lock takes the per-target run lock. A lock past its TTL, unreadable, or
// held by a dead process on this host is broken. The returned release
// func only removes the lock if this call still owns it.
func (s *Store) Lock(target string, ttl time.Duration) (func() error, error) {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	path := s.layout.LockPath(target)
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	if existing, err := s.readLock(path); err == nil {
		if !s.stale(existing) {
			return nil, fmt.Errorf("%w: %s (pid %d on %s until %s)", ErrLocked, target,
				existing.PID, existing.Hostname, existing.ExpiresAt.Format(time.RFC3339))
		}
		if err := s.breakStale(path, existing); err != nil {
			return nil, fmt.Errorf("%s: %w", target, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		if err := s.breakStale(path, nil); err != nil {
			return nil, fmt.Errorf("%s: %w", target, err)
		}
	}

	hostname, _ := os.Hostname()
	now := s.now().UTC()
	info := LockInfo{
		Owner:      uuid.NewString(),
		PID:        os.Getpid(),
		Hostname:   hostname,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize lock info: %w", err)
	}

	f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, target)
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = s.fs.Remove(path)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	release := func() error {
		current, err := s.readLock(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err == nil && current.Owner != info.Owner {
			return nil
		}
		if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
	return release, nil
}

// breakStale removes the lock at path only if it is still the stale lock
// that was observed (nil for an unreadable one). Breakers serialize on a
// sibling .break file so a contender that saw the old lock can never
// remove one another run has just taken.
func (s *Store) breakStale(path string, observed *LockInfo) error {
	guard := path + ".break"
	if st, err := s.fs.Stat(guard); err == nil && s.now().Sub(st.ModTime()) > breakGuardTTL {
		_ = s.fs.Remove(guard)
	}
	g, err := s.fs.OpenFile(guard, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: stale lock is being broken", ErrLocked)
		}
		return fmt.Errorf("failed to guard stale lock: %w", err)
	}
	_ = g.Close()
	defer func() { _ = s.fs.Remove(guard) }()

	current, err := s.readLock(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		// A lock file is briefly empty between create and write.
		if st, serr := s.fs.Stat(path); serr == nil && s.now().Sub(st.ModTime()) < unreadableGrace {
			return fmt.Errorf("%w: lock file is being written", ErrLocked)
		}
	case !s.stale(current) || (observed != nil && current.Owner != observed.Owner):
		return fmt.Errorf("%w: lock was taken by %s", ErrLocked, current.Owner)
	}
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to break stale lock: %w", err)
	}
	return nil
}

func (s *Store) readLock(path string) (*LockInfo, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *Store) stale(info *LockInfo) bool {
	if s.now().UTC().After(info.ExpiresAt) {
		return true
	}
	hostname, _ := os.Hostname()
	return info.Hostname == hostname && !processRunning(info.PID)
}

func processRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
