package generator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Replay serves scripted responses from attempt-1.txt, attempt-2.txt, ...
// one per call. It makes runs reproducible offline. A target's script is
// read from <dir>/<target>/ when present, else from <dir>/, and restarts
// at attempt-1.txt with every run.
type Replay struct {
	Dir string

	mu   sync.Mutex
	next map[string]int
}

// NewReplay checks that dir exists.
func NewReplay(dir string) (*Replay, error) {
	if dir == "" {
		return nil, errors.New("replay generator requires generator.replay_dir")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("replay dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("replay dir %s is not a directory", dir)
	}
	return &Replay{Dir: dir}, nil
}

// BeginRun rewinds the target's script.
func (r *Replay) BeginRun(target string) {
	r.mu.Lock()
	delete(r.next, target)
	r.mu.Unlock()
}

// Complete returns the next response of the shared script.
func (r *Replay) Complete(ctx context.Context, system, user string) (string, error) {
	return r.CompleteTarget(ctx, "", system, user)
}

// CompleteTarget returns the target's next scripted response. Running past
// the script is permanent: later calls would fail the same way.
func (r *Replay) CompleteTarget(ctx context.Context, target, _, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	if r.next == nil {
		r.next = map[string]int{}
	}
	r.next[target]++
	n := r.next[target]
	r.mu.Unlock()

	name := fmt.Sprintf("attempt-%d.txt", n)
	paths := []string{filepath.Join(r.Dir, name)}
	if target != "" {
		paths = append([]string{filepath.Join(r.Dir, target, name)}, paths...)
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", permanent("replay read", err)
		}
	}
	return "", permanent("replay script exhausted", fmt.Errorf("no response %d in %s", n, r.Dir))
}

// Reset rewinds every script.
func (r *Replay) Reset() {
	r.mu.Lock()
	r.next = nil
	r.mu.Unlock()
}
