package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/stablemem/internal/cli/connection"
	"github.com/yndnr/stablemem/internal/core/domain"
	"github.com/yndnr/stablemem/internal/server/httpserver"
	"github.com/yndnr/stablemem/internal/storage"
	"github.com/yndnr/stablemem/internal/storage/stable"
	"github.com/yndnr/stablemem/internal/telemetry/metric"
	"github.com/yndnr/stablemem/pkg/token"
)

const testKey = "test-key"

type testEnv struct {
	t          *testing.T
	engine     *storage.Engine
	server     *httptest.Server
	configPath string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil)
}

// newTestEnvWith lets a test adjust the engine configuration.
func newTestEnvWith(t *testing.T, configure func(*storage.Config)) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	cfg := storage.DefaultConfig(dir)
	cfg.Region.Backend = stable.BackendMemory
	cfg.Region.MaxPages = 64
	cfg.SnapshotOnShutdown = false
	cfg.Archive.Dir = filepath.Join(dir, "archive")
	cfg.Logger = log
	if configure != nil {
		configure(&cfg)
	}

	engine, err := storage.New(cfg)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	rc := httpserver.DefaultRouterConfig()
	rc.Engine = engine
	rc.Logger = log
	rc.Metrics = metric.NewRegistry()
	rc.APIKey = testKey
	rc.EnableAudit = false

	srv := httptest.NewServer(httpserver.NewRouter(rc))
	t.Cleanup(srv.Close)

	return &testEnv{
		t:          t,
		engine:     engine,
		server:     srv,
		configPath: filepath.Join(t.TempDir(), "cli.yaml"),
	}
}

// run executes the CLI with only the config flag set.
func (e *testEnv) run(stdin string, args ...string) (string, string, error) {
	e.t.Helper()
	app := App()
	var stdout, stderr bytes.Buffer
	app.Reader = strings.NewReader(stdin)
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.ExitErrHandler = func(*cli.Context, error) {}

	full := append([]string{"stablemem-cli", "--config", e.configPath}, args...)
	err := app.Run(full)
	return stdout.String(), stderr.String(), err
}

// call executes the CLI against the test server as JSON.
func (e *testEnv) call(args ...string) (string, error) {
	e.t.Helper()
	full := append([]string{"--server", e.server.URL, "--api-key", testKey, "-o", "json"}, args...)
	out, _, err := e.run("", full...)
	return out, err
}

func (e *testEnv) mustCall(target any, args ...string) {
	e.t.Helper()
	out, err := e.call(args...)
	if err != nil {
		e.t.Fatalf("%v: %v", args, err)
	}
	if target != nil {
		if err := json.Unmarshal([]byte(out), target); err != nil {
			e.t.Fatalf("%v: decode %q: %v", args, out, err)
		}
	}
}

func TestBlobAndSnapshot(t *testing.T) {
	env := newTestEnv(t)

	var first pushBlobResult
	env.mustCall(&first, "blob", "push", "--data", "hello")
	if first.Key != 0 || first.Size != 5 {
		t.Errorf("first push = %+v", first)
	}

	file := filepath.Join(t.TempDir(), "blob.bin")
	if err := os.WriteFile(file, []byte{4, 5}, 0o600); err != nil {
		t.Fatal(err)
	}
	var second pushBlobResult
	env.mustCall(&second, "blob", "push", file)
	if second.Key != 1 || second.Size != 2 {
		t.Errorf("second push = %+v", second)
	}

	var saved snapshotInfo
	env.mustCall(&saved, "snapshot", "save")
	if saved.EntryCount != 2 || saved.Pages == 0 || saved.Checksum == "" {
		t.Errorf("save = %+v", saved)
	}

	var loaded snapshotInfo
	env.mustCall(&loaded, "snapshot", "load")
	if loaded.Checksum != saved.Checksum || loaded.EntryCount != 2 {
		t.Errorf("load = %+v, want checksum %s", loaded, saved.Checksum)
	}

	var archives []archiveInfo
	env.mustCall(&archives, "snapshot", "archives")
	if len(archives) != 1 {
		t.Fatalf("archives = %+v, want 1", archives)
	}

	var restored snapshotInfo
	env.mustCall(&restored, "snapshot", "restore")
	if restored.EntryCount != 2 {
		t.Errorf("restore = %+v", restored)
	}

	var mh memoryHeader
	env.mustCall(&mh, "memory", "header", "--trusted")
	if !mh.Trusted || mh.StablePages != saved.Pages || mh.StableSize != saved.Pages*domain.PageSize {
		t.Errorf("header = %+v", mh)
	}
}

func TestBlobPush_Stdin(t *testing.T) {
	env := newTestEnv(t)

	out, _, err := env.run("from stdin",
		"--server", env.server.URL, "--api-key", testKey, "blob", "push", "-")
	if err != nil {
		t.Fatalf("blob push -: %v", err)
	}
	if !strings.Contains(out, "KEY") || !strings.Contains(out, "10 B") {
		t.Errorf("table output = %q", out)
	}
}

func TestBlobPush_NeedsInput(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.call("blob", "push"); err == nil {
		t.Error("blob push without input should fail")
	}
	if _, err := env.call("blob", "push", "--data", "x", "file"); err == nil {
		t.Error("--data with FILE should fail")
	}
}

func TestAuthFailure(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.run("", "--server", env.server.URL, "--api-key", "wrong", "snapshot", "save")
	var apiErr *connection.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != 401 || apiErr.Code != domain.ErrUnauthorized.Code {
		t.Errorf("api error = %+v", apiErr)
	}
}

func TestSystemCommands(t *testing.T) {
	env := newTestEnv(t)
	env.mustCall(nil, "blob", "push", "-d", "abc")

	var st statusSummary
	env.mustCall(&st, "system", "status")
	if st.Engine.Entries != 1 || st.Engine.Backend != stable.BackendMemory {
		t.Errorf("status = %+v", st)
	}

	var health healthStatus
	env.mustCall(&health, "system", "health")
	if health.Status != "healthy" {
		t.Errorf("health = %+v", health)
	}

	var ready healthStatus
	env.mustCall(&ready, "sys", "ready")
	if ready.Status != "ready" {
		t.Errorf("ready = %+v", ready)
	}

	out, _, err := env.run("", "--server", env.server.URL, "--api-key", testKey, "-o", "yaml", "system", "status")
	if err != nil {
		t.Fatalf("yaml status: %v", err)
	}
	if !strings.Contains(out, "backend: memory") {
		t.Errorf("yaml status = %q", out)
	}
}

func TestConnectAndProfiles(t *testing.T) {
	env := newTestEnv(t)

	out, _, err := env.run("", "--api-key", testKey, "connect", env.server.URL, "--name", "local")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !strings.Contains(out, `profile "local"`) {
		t.Errorf("connect output = %q", out)
	}

	raw, err := os.ReadFile(env.configPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if strings.Contains(string(raw), testKey) {
		t.Error("API key stored in clear text")
	}

	// The saved profile supplies server and key.
	out, _, err = env.run("", "-o", "json", "system", "health")
	if err != nil {
		t.Fatalf("health via profile: %v", err)
	}
	if !strings.Contains(out, "healthy") {
		t.Errorf("health = %q", out)
	}

	out, _, err = env.run("", "-o", "json", "profile", "list")
	if err != nil {
		t.Fatalf("profile list: %v", err)
	}
	var profiles []connection.ProfileInfo
	if err := json.Unmarshal([]byte(out), &profiles); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(profiles) != 1 || !profiles[0].Current || profiles[0].KeyFingerprint != token.Fingerprint(testKey) {
		t.Errorf("profiles = %+v", profiles)
	}

	if _, _, err := env.run("", "disconnect"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, _, err := env.run("", "profile", "use", "missing"); err == nil {
		t.Error("use of missing profile should fail")
	}
	if _, _, err := env.run("", "profile", "use", "local"); err != nil {
		t.Fatalf("use: %v", err)
	}
	if _, _, err := env.run("", "profile", "rm", "local"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	out, _, _ = env.run("", "-o", "json", "profile", "list")
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("profiles after remove = %q", out)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	env := newTestEnv(t)
	url := env.server.URL
	env.server.Close()

	if _, _, err := env.run("", "connect", url); err == nil {
		t.Fatal("connect to a closed server should fail")
	}
	if _, err := os.Stat(env.configPath); !os.IsNotExist(err) {
		t.Errorf("config written after failed connect: %v", err)
	}
}

func TestConfigCommands(t *testing.T) {
	env := newTestEnv(t)

	out, _, err := env.run("", "config", "path")
	if err != nil || strings.TrimSpace(out) != env.configPath {
		t.Fatalf("config path = %q, %v", out, err)
	}

	if _, _, err := env.run("", "config", "set", "output", "bogus"); err == nil {
		t.Error("invalid output format should fail")
	}
	if _, _, err := env.run("", "config", "set", "color", "on"); err == nil {
		t.Error("unknown key should fail")
	}
	if _, _, err := env.run("", "config", "set", "output", "json"); err != nil {
		t.Fatalf("config set: %v", err)
	}

	out, _, err = env.run("", "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	var view configView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("config show should default to json now, got %q: %v", out, err)
	}
	if view.Output != "json" || view.Path != env.configPath {
		t.Errorf("view = %+v", view)
	}
}

func TestKeyGenerate(t *testing.T) {
	env := newTestEnv(t)

	out, _, err := env.run("", "-o", "json", "key", "generate")
	if err != nil {
		t.Fatalf("key generate: %v", err)
	}
	var key generatedKey
	if err := json.Unmarshal([]byte(out), &key); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !strings.HasPrefix(key.Key, token.Prefix) || key.Fingerprint != token.Fingerprint(key.Key) {
		t.Errorf("key = %+v", key)
	}

	if _, _, err := env.run("", "key", "generate", "--length", "4"); err == nil {
		t.Error("short key length should fail")
	}
}

func TestShell(t *testing.T) {
	env := newTestEnv(t)

	input := "blob push -d \"two words\"\nsnapshot save\nbogus\nexit\n"
	out, _, err := env.run(input, "--server", env.server.URL, "--api-key", testKey, "-o", "json", "shell")
	if err != nil {
		t.Fatalf("shell: %v", err)
	}

	stats, err := env.engine.Stats(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 1 || stats.Bytes != uint64(len("two words")) || stats.LastSave == nil {
		t.Errorf("stats = %+v", stats)
	}
	if !strings.Contains(out, `"entry_count": 1`) {
		t.Errorf("shell output missing snapshot json: %q", out)
	}
	if !strings.Contains(out, `unknown command "bogus"`) {
		t.Errorf("shell output missing unknown command: %q", out)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(env.configPath), "history")); err != nil {
		t.Errorf("history not saved: %v", err)
	}
}
