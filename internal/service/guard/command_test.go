package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/cf-guard/internal/config"
)

// fakeCloudflare serves the security_level endpoint from memory.
type fakeCloudflare struct {
	mu sync.Mutex
	// mode is the current remote value.
	mode string
	// getStatus overrides the GET status when non-zero.
	getStatus int
	// patches records PATCHed values.
	patches []string
	// calls counts all requests.
	calls int
}

func (f *fakeCloudflare) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++

	switch r.Method {
	case http.MethodGet:
		if f.getStatus != 0 {
			w.WriteHeader(f.getStatus)
			_, _ = w.Write([]byte(`{"success":false}`))

			return
		}

		_, _ = fmt.Fprintf(w, `{"success":true,"result":{"id":"security_level","value":%q}}`, f.mode)
	case http.MethodPatch:
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.patches = append(f.patches, body["value"])
		f.mode = body["value"]

		_, _ = fmt.Fprintf(w, `{"success":true,"result":{"id":"security_level","value":%q}}`, f.mode)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeCloudflare) snapshot() (string, []string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.mode, append([]string(nil), f.patches...), f.calls
}

// runEnv is a temp directory with config, state and loadavg files.
type runEnv struct {
	dir     string
	cf      *fakeCloudflare
	opts    *Options
	cache   string
	ts      string
	metrics string
	alerts  string
}

// newRunEnv writes a config pointing at a fake API and returns the environment.
func newRunEnv(t *testing.T, load string, extra ...string) *runEnv {
	t.Helper()

	dir := t.TempDir()
	cf := &fakeCloudflare{mode: "medium"}
	srv := httptest.NewServer(cf)
	t.Cleanup(srv.Close)

	env := &runEnv{
		dir:     dir,
		cf:      cf,
		cache:   filepath.Join(dir, "cf_mode_cache"),
		ts:      filepath.Join(dir, "cf_under_attack_timestamp"),
		metrics: filepath.Join(dir, "cf_guard.prom"),
		alerts:  filepath.Join(dir, "alerts.log"),
	}

	lines := []string{
		"ZONE_ID=zone-1",
		"CF_API_TOKEN=secret",
		"CF_API_URL=" + srv.URL,
		"LOAD_THRESHOLD=7.0",
		"CACHE_FILE=" + env.cache,
		"TIMESTAMP_FILE=" + env.ts,
		"ALERT_TS_FILE=" + filepath.Join(dir, "alert_ts"),
		"LOCK_FILE=" + filepath.Join(dir, "guard.lock"),
		"METRICS_TEXTFILE=" + env.metrics,
		"ALERT_MODE=command",
		// Quoted so the inline comment rule leaves #MSG# alone.
		`ALERT_COMMAND="printf '%s\n' #MSG# >> ` + env.alerts + `"`,
	}
	lines = append(lines, extra...)

	configPath := filepath.Join(dir, "cf-under-attack.conf")
	require.NoError(t, os.WriteFile(configPath, []byte(strings.Join(lines, "\n")), 0o600))

	loadPath := filepath.Join(dir, "loadavg")
	require.NoError(t, os.WriteFile(loadPath, []byte("0.10 "+load+" 0.30 1/100 42\n"), 0o600))

	env.opts = &Options{
		ConfigPath:  configPath,
		LoadAvgPath: loadPath,
	}

	return env
}

// TestRun_EntersUnderAttack runs the full wiring on high load.
func TestRun_EntersUnderAttack(t *testing.T) {
	t.Parallel()

	env := newRunEnv(t, "9.30")

	require.NoError(t, Run(context.Background(), env.opts))

	mode, patches, _ := env.cf.snapshot()
	require.Equal(t, "under_attack", mode)
	require.Equal(t, []string{"under_attack"}, patches)

	cache, err := os.ReadFile(env.cache)
	require.NoError(t, err)
	require.Equal(t, "under_attack", string(cache))

	_, err = os.Stat(env.ts)
	require.NoError(t, err)

	prom, err := os.ReadFile(env.metrics)
	require.NoError(t, err)
	require.Contains(t, string(prom), "cf_guard_under_attack 1")

	// The lock is released after the run.
	_, err = os.Stat(filepath.Join(env.dir, "guard.lock"))
	require.ErrorIs(t, err, os.ErrNotExist)

	if _, statErr := os.Stat("/bin/sh"); statErr == nil {
		alerts, readErr := os.ReadFile(env.alerts)
		require.NoError(t, readErr)

		// First run: manual sync alert for the empty cache; the entry alert is within the cooldown.
		require.Equal(t, 1, strings.Count(string(alerts), "\n"))
		require.Contains(t, string(alerts), "manually")
	}

	// Second run is a no-op.
	require.NoError(t, Run(context.Background(), env.opts))

	_, patches, _ = env.cf.snapshot()
	require.Len(t, patches, 1)
}

// TestRun_MissingCredentials fails before any network call.
func TestRun_MissingCredentials(t *testing.T) {
	t.Parallel()

	env := newRunEnv(t, "9.30", "CF_API_TOKEN=")

	err := Run(context.Background(), env.opts)
	require.ErrorIs(t, err, config.ErrMissingCredentials)
	require.Equal(t, ExitConfigError, ExitCode(err))

	_, _, calls := env.cf.snapshot()
	require.Zero(t, calls)

	_, err = os.Stat(env.cache)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRun_MissingConfig reports a configuration error.
func TestRun_MissingConfig(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), &Options{ConfigPath: filepath.Join(t.TempDir(), "missing.conf")})
	require.ErrorIs(t, err, ErrConfig)
	require.Equal(t, ExitConfigError, ExitCode(err))
}

// TestRun_RemoteUnavailable exits with status 2 and leaves state alone.
func TestRun_RemoteUnavailable(t *testing.T) {
	t.Parallel()

	env := newRunEnv(t, "9.30")
	env.cf.getStatus = http.StatusForbidden

	err := Run(context.Background(), env.opts)
	require.ErrorIs(t, err, ErrRemoteUnavailable)
	require.Equal(t, ExitRemoteUnavailable, ExitCode(err))

	_, err = os.Stat(env.cache)
	require.ErrorIs(t, err, os.ErrNotExist)

	prom, err := os.ReadFile(env.metrics)
	require.NoError(t, err)
	require.Contains(t, string(prom), "cf_guard_last_run_success 0")
	require.Contains(t, string(prom), "cf_guard_load5 9.3")
	require.NotContains(t, string(prom), "cf_guard_mode_info{")
}

// TestRun_Locked skips the run while another process holds the lock.
func TestRun_Locked(t *testing.T) {
	t.Parallel()

	env := newRunEnv(t, "9.30")
	lockPath := filepath.Join(env.dir, "guard.lock")
	require.NoError(t, os.WriteFile(lockPath, []byte(fmt.Sprint(os.Getpid())), 0o600))

	require.NoError(t, Run(context.Background(), env.opts))

	_, _, calls := env.cf.snapshot()
	require.Zero(t, calls)

	// The foreign lock is left in place.
	_, err := os.Stat(lockPath)
	require.NoError(t, err)
}

// TestRun_ExitsAfterCooldown returns to the normal mode once the window expired.
func TestRun_ExitsAfterCooldown(t *testing.T) {
	t.Parallel()

	env := newRunEnv(t, "1.00", "LOW_LOAD_MODE=high")
	env.cf.mode = "under_attack"

	now := time.Unix(1700000000, 0)
	env.opts.Clock = func() time.Time { return now }

	require.NoError(t, os.WriteFile(env.cache, []byte("under_attack"), 0o600))
	require.NoError(t, os.WriteFile(env.ts, []byte(fmt.Sprint(now.Add(-4*time.Hour).Unix())), 0o600))

	require.NoError(t, Run(context.Background(), env.opts))

	mode, _, _ := env.cf.snapshot()
	require.Equal(t, "high", mode)

	_, err := os.Stat(env.ts)
	require.ErrorIs(t, err, os.ErrNotExist)
}
