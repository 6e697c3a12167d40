package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/cf-guard/internal/domain/guard"
)

// newTestRepository returns a repository rooted in a temp dir plus its file paths.
func newTestRepository(t *testing.T) (*FileRepository, string, string) {
	t.Helper()

	dir := t.TempDir()
	cache := filepath.Join(dir, "cf_mode_cache")
	ts := filepath.Join(dir, "cf_under_attack_timestamp")

	return NewFileRepository(cache, ts), cache, ts
}

// TestFileRepository_Empty verifies missing files read as empty state.
func TestFileRepository_Empty(t *testing.T) {
	t.Parallel()

	repo, _, _ := newTestRepository(t)

	s, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.True(t, s.CachedMode.IsZero())
	require.False(t, s.HasActivation())
}

// TestFileRepository_SaveLoad_Roundtrip ensures saved values are loaded back.
func TestFileRepository_SaveLoad_Roundtrip(t *testing.T) {
	t.Parallel()

	repo, cache, ts := newTestRepository(t)
	ctx := context.Background()
	at := time.Unix(1700000000, 0)

	require.NoError(t, repo.SaveMode(ctx, domain.UnderAttack))
	require.NoError(t, repo.SaveActivation(ctx, at))

	s, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.UnderAttack, s.CachedMode)
	require.Equal(t, at.Unix(), s.ActivatedAt.Unix())

	raw, err := os.ReadFile(cache)
	require.NoError(t, err)
	require.Equal(t, "under_attack", string(raw))

	raw, err = os.ReadFile(ts)
	require.NoError(t, err)
	require.Equal(t, "1700000000", string(raw))

	info, err := os.Stat(cache)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, repo.ClearActivation(ctx))
	require.NoError(t, repo.ClearActivation(ctx))

	_, err = os.Stat(ts)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestFileRepository_Malformed keeps a malformed timestamp as an expired window.
func TestFileRepository_Malformed(t *testing.T) {
	t.Parallel()

	for _, contents := range []string{"yesterday", "0", "-5", ""} {
		repo, cache, ts := newTestRepository(t)

		require.NoError(t, os.WriteFile(cache, []byte("  medium \n"), 0o600))
		require.NoError(t, os.WriteFile(ts, []byte(contents), 0o600))

		s, err := repo.Load(context.Background())
		require.NoError(t, err)
		require.Equal(t, domain.Medium, s.CachedMode)
		require.True(t, s.HasActivation(), "contents %q", contents)
		require.Equal(t, int64(0), s.ActivatedAt.Unix(), "contents %q", contents)
	}
}

// TestAlertFileRepository covers roundtrip and the disabled (empty path) case.
func TestAlertFileRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewAlertFileRepository(filepath.Join(t.TempDir(), "alert_ts"))

	s, err := repo.Load(ctx)
	require.NoError(t, err)
	require.True(t, s.LastAlertAt.IsZero())

	at := time.Unix(1700000123, 0)
	require.NoError(t, repo.Save(ctx, at))

	s, err = repo.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, at.Unix(), s.LastAlertAt.Unix())

	disabled := NewAlertFileRepository("")
	require.NoError(t, disabled.Save(ctx, at))

	s, err = disabled.Load(ctx)
	require.NoError(t, err)
	require.True(t, s.LastAlertAt.IsZero())
}
