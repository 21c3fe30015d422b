package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yndnr/stablemem/internal/cli/config"
)

func healthServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		writeEnvelope(w, http.StatusOK, "OK", map[string]string{"status": "healthy"}, nil)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestManager_ResolveDefaults(t *testing.T) {
	m := NewManager(nil, t.TempDir())

	got, err := m.Resolve(Target{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Server != config.DefaultServer || got.Profile != "" {
		t.Errorf("Resolve() = %+v", got)
	}
}

func TestManager_ConnectAndResolve(t *testing.T) {
	srv := healthServer(t)
	dir := t.TempDir()
	m := NewManager(config.Default(), dir)

	if err := m.Connect(context.Background(), "local", Target{Server: srv.URL, APIKey: "smk_key"}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	cfg := m.Config()
	if cfg.Current != "local" {
		t.Errorf("Current = %q", cfg.Current)
	}
	if strings.Contains(cfg.Profiles["local"].APIKey, "smk_key") {
		t.Error("profile stores the API key in plain text")
	}

	got, err := m.Resolve(Target{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Server != srv.URL || got.APIKey != "smk_key" || got.Profile != "local" {
		t.Errorf("Resolve() = %+v", got)
	}

	// Flags win over the profile.
	got, _ = m.Resolve(Target{Server: "http://other:1", APIKey: "flag"})
	if got.Server != "http://other:1" || got.APIKey != "flag" {
		t.Errorf("override Resolve() = %+v", got)
	}
}

func TestManager_ConnectFailsHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusServiceUnavailable, "SM-SYS-5030", nil, nil)
	}))
	defer srv.Close()

	m := NewManager(config.Default(), t.TempDir())
	if err := m.Connect(context.Background(), "down", Target{Server: srv.URL}); err == nil {
		t.Fatal("Connect() succeeded against an unhealthy server")
	}
	if len(m.Config().Profiles) != 0 {
		t.Error("failed connect saved a profile")
	}
	if err := m.Connect(context.Background(), "", Target{Server: srv.URL}); err == nil {
		t.Error("Connect() accepted an empty name")
	}
}

func TestManager_UseDisconnectRemove(t *testing.T) {
	cfg := config.Default()
	cfg.SetProfile("a", config.Profile{Server: "http://a:1"})
	cfg.SetProfile("b", config.Profile{Server: "http://b:1"})
	m := NewManager(cfg, t.TempDir())

	if err := m.Use("missing"); err == nil {
		t.Error("Use() accepted an unknown profile")
	}
	if err := m.Use("b"); err != nil {
		t.Fatal(err)
	}
	if got, _ := m.Resolve(Target{}); got.Server != "http://b:1" {
		t.Errorf("Resolve() server = %q", got.Server)
	}

	if !m.Disconnect() {
		t.Error("Disconnect() should report the cleared profile")
	}
	if m.Disconnect() {
		t.Error("second Disconnect() should report nothing to clear")
	}

	m.Use("a")
	if err := m.Remove("a"); err != nil {
		t.Fatal(err)
	}
	if m.Config().Current != "" {
		t.Error("removing the current profile should clear Current")
	}
	if err := m.Remove("a"); err == nil {
		t.Error("Remove() of a missing profile should fail")
	}
}

func TestManager_Profiles(t *testing.T) {
	dir := t.TempDir()
	sealed, err := config.SealAPIKey(dir, "prod", "smk_prod")
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.SetProfile("prod", config.Profile{Server: "https://prod", APIKey: sealed})
	cfg.SetProfile("dev", config.Profile{Server: "http://dev"})
	cfg.Current = "prod"

	list, err := NewManager(cfg, dir).Profiles()
	if err != nil {
		t.Fatalf("Profiles() error = %v", err)
	}
	if len(list) != 2 || list[0].Name != "dev" || list[1].Name != "prod" {
		t.Fatalf("Profiles() = %+v", list)
	}
	if !list[1].Current || list[0].Current {
		t.Error("Current flag on the wrong profile")
	}
	if list[1].KeyFingerprint == "" || strings.Contains(list[1].KeyFingerprint, "smk") {
		t.Errorf("fingerprint = %q", list[1].KeyFingerprint)
	}
	if list[0].KeyFingerprint != "" {
		t.Error("profile without key has a fingerprint")
	}
}

func TestManager_ClientTLS(t *testing.T) {
	m := NewManager(nil, t.TempDir())

	c, err := m.Client(Target{Server: "https://secure:5443", Insecure: true})
	if err != nil {
		t.Fatalf("Client() error = %v", err)
	}
	tr := c.client.Transport.(*http.Transport)
	if tr.TLSClientConfig == nil || !tr.TLSClientConfig.InsecureSkipVerify {
		t.Error("https target should carry the TLS config")
	}

	if _, err := m.Client(Target{Server: "https://secure", CAFile: "/nonexistent/ca.pem"}); err == nil {
		t.Error("Client() accepted a missing CA file")
	}
}
