package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	ps "github.com/mitchellh/go-ps"

	"github.com/oshokin/cf-guard/internal/config"
)

// ErrLocked is returned when another live process holds the lock.
var ErrLocked = errors.New("another run holds the lock")

// processFinder looks a PID up in the process table.
// It matches the signature of ps.FindProcess and is swapped in tests.
type processFinder func(pid int) (ps.Process, error)

// Lock is a held PID file lock.
type Lock struct {
	// path is the lock file location.
	path string
}

// Acquire creates the lock file at path.
// A lock whose PID no longer exists is treated as stale and replaced.
func Acquire(path string) (*Lock, error) {
	return acquire(filepath.Clean(path), os.Getpid(), ps.FindProcess)
}

func acquire(path string, pid int, find processFinder) (*Lock, error) {
	// Two attempts: the second one follows removal of a stale lock.
	for range 2 {
		err := create(path, pid)
		if err == nil {
			return &Lock{path: path}, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}

		stale, err := os.Stat(path)
		if err != nil {
			// Released between our create and stat.
			continue
		}

		holder, alive := holderAlive(path, find)
		if alive {
			return nil, fmt.Errorf("%w: pid %d", ErrLocked, holder)
		}

		if err = removeStale(path, stale, pid); err != nil {
			return nil, err
		}
	}

	return nil, ErrLocked
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}

	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}

	return nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// create publishes a lock file that already holds pid. The PID is written to a
// temp file which is then hard-linked to path, so the lock never exists empty.
func create(path string, pid int) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()

	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err = tmp.WriteString(strconv.Itoa(pid)); err != nil {
		_ = tmp.Close()
		return err
	}

	if err = tmp.Chmod(config.DefaultFilePermissions); err != nil {
		_ = tmp.Close()
		return err
	}

	if err = tmp.Close(); err != nil {
		return err
	}

	err = os.Link(tmpName, path)
	if err == nil || errors.Is(err, os.ErrExist) {
		return err
	}

	// Filesystems without hard links fall back to an exclusive create.
	return createExclusive(path, pid)
}

func createExclusive(path string, pid int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, config.DefaultFilePermissions)
	if err != nil {
		return err
	}

	if _, err = f.WriteString(strconv.Itoa(pid)); err != nil {
		_ = f.Close()
		_ = os.Remove(path)

		return err
	}

	return f.Close()
}

// removeStale moves the stale lock aside and deletes it. If the file moved is
// not the one judged stale, another run replaced it in the meantime: it is put
// back and the lock is reported as held.
func removeStale(path string, stale os.FileInfo, pid int) error {
	aside := fmt.Sprintf("%s.stale.%d", path, pid)

	if err := os.Rename(path, aside); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("remove stale lock file: %w", err)
	}

	defer func() {
		_ = os.Remove(aside)
	}()

	moved, err := os.Stat(aside)
	if err != nil {
		return fmt.Errorf("remove stale lock file: %w", err)
	}

	if !os.SameFile(stale, moved) {
		_ = os.Link(aside, path)
		return ErrLocked
	}

	return nil
}

// holderAlive reports the PID recorded in path and whether it is running.
// Unreadable or malformed lock files count as stale.
func holderAlive(path string, find processFinder) (int, bool) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil || pid <= 0 {
		return 0, false
	}

	process, err := find(pid)
	if err != nil {
		// The process table could not be read; assume the holder is alive.
		return pid, true
	}

	return pid, process != nil
}
