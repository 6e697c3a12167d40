package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oshokin/cf-guard/internal/config"
	domain "github.com/oshokin/cf-guard/internal/domain/guard"
)

// GuardRepository defines persistence operations for the guard state.
type GuardRepository interface {
	Load(ctx context.Context) (*domain.State, error)
	SaveMode(ctx context.Context, mode domain.Mode) error
	SaveActivation(ctx context.Context, at time.Time) error
	ClearActivation(ctx context.Context) error
}

// AlertRepository defines persistence operations for the alert cooldown.
type AlertRepository interface {
	Load(ctx context.Context) (*domain.AlertState, error)
	Save(ctx context.Context, at time.Time) error
}

// FileRepository persists the guard state to a cache file and a timestamp file.
type FileRepository struct {
	// cachePath holds the last known remote mode.
	cachePath string
	// timestampPath holds the activation time of the under_attack window.
	timestampPath string
}

// NewFileRepository creates a repository over the cache and timestamp files.
func NewFileRepository(cachePath, timestampPath string) *FileRepository {
	return &FileRepository{
		cachePath:     filepath.Clean(cachePath),
		timestampPath: filepath.Clean(timestampPath),
	}
}

// Load reads the state from disk. Unreadable files yield an empty state.
func (r *FileRepository) Load(_ context.Context) (*domain.State, error) {
	return &domain.State{
		CachedMode:  domain.ParseMode(readLine(r.cachePath)),
		ActivatedAt: readTimestamp(r.timestampPath),
	}, nil
}

// SaveMode writes the cached mode.
func (r *FileRepository) SaveMode(_ context.Context, mode domain.Mode) error {
	if err := writeAtomic(r.cachePath, mode.String()); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}

	return nil
}

// SaveActivation writes the activation timestamp.
func (r *FileRepository) SaveActivation(_ context.Context, at time.Time) error {
	if err := writeAtomic(r.timestampPath, strconv.FormatInt(at.Unix(), 10)); err != nil {
		return fmt.Errorf("write timestamp file: %w", err)
	}

	return nil
}

// ClearActivation removes the activation timestamp. A missing file is not an error.
func (r *FileRepository) ClearActivation(_ context.Context) error {
	if err := os.Remove(r.timestampPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove timestamp file: %w", err)
	}

	return nil
}

// AlertFileRepository persists the alert cooldown timestamp.
// An empty path disables persistence entirely.
type AlertFileRepository struct {
	// path is the alert timestamp file, or empty.
	path string
}

// NewAlertFileRepository creates an alert repository over path.
func NewAlertFileRepository(path string) *AlertFileRepository {
	if path != "" {
		path = filepath.Clean(path)
	}

	return &AlertFileRepository{
		path: path,
	}
}

// Load reads the last alert time. A missing file yields a zero time.
func (r *AlertFileRepository) Load(_ context.Context) (*domain.AlertState, error) {
	if r.path == "" {
		return new(domain.AlertState), nil
	}

	return &domain.AlertState{
		LastAlertAt: readTimestamp(r.path),
	}, nil
}

// Save records the alert time.
func (r *AlertFileRepository) Save(_ context.Context, at time.Time) error {
	if r.path == "" {
		return nil
	}

	if err := writeAtomic(r.path, strconv.FormatInt(at.Unix(), 10)); err != nil {
		return fmt.Errorf("write alert timestamp file: %w", err)
	}

	return nil
}

// readLine returns the trimmed file contents, or empty on any error.
func readLine(path string) string {
	contents, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(contents))
}

// readTimestamp parses a Unix epoch file. A missing or unreadable file yields
// a zero time. A present file that is empty, malformed or not positive yields
// the Unix epoch, so it reads as a window that expired long ago.
func readTimestamp(path string) time.Time {
	contents, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}
	}

	epoch, err := strconv.ParseInt(strings.TrimSpace(string(contents)), 10, 64)
	if err != nil || epoch <= 0 {
		return time.Unix(0, 0)
	}

	return time.Unix(epoch, 0)
}

// writeAtomic replaces path with contents via a temp file in the same directory.
func writeAtomic(path, contents string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()

	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if _, err = tmp.WriteString(contents); err != nil {
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

	return os.Rename(tmpName, path)
}
