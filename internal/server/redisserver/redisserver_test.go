package redisserver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/stablemem/internal/core/domain"
	"github.com/yndnr/stablemem/internal/storage"
	"github.com/yndnr/stablemem/internal/storage/stable"
	"github.com/yndnr/stablemem/internal/telemetry/logger"
)

// ============================================================
// Test helpers
// ============================================================

func quietLogger() *slog.Logger {
	return logger.Discard()
}

func newTestEngine(t *testing.T) *storage.Engine {
	t.Helper()
	cfg := storage.DefaultConfig(t.TempDir())
	cfg.Region.Backend = stable.BackendMemory
	cfg.Region.MaxPages = 16
	cfg.MaxPayload = 2 * domain.PageSize
	cfg.SnapshotOnShutdown = false
	cfg.Logger = quietLogger()

	e, err := storage.New(cfg)
	if err != nil {
		t.Fatalf("storage.New failed: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	cfg.ReadTimeout = time.Second
	cfg.WriteTimeout = time.Second
	cfg.IdleTimeout = time.Second
	cfg.RateLimit = 0
	return cfg
}

// testClient speaks RESP over one side of a net.Pipe.
type testClient struct {
	t    *testing.T
	conn net.Conn
	br   *bufio.Reader
	done chan struct{}
}

func dial(t *testing.T, srv *Server) *testClient {
	t.Helper()
	server, client := net.Pipe()

	c := &testClient{t: t, conn: client, br: bufio.NewReader(client), done: make(chan struct{})}
	go func() {
		srv.serveConn(context.Background(), newConn(server))
		close(c.done)
	}()
	t.Cleanup(func() { client.Close() })
	return c
}

// do sends one command and returns the decoded reply.
func (c *testClient) do(args ...string) any {
	c.t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "*%d\r\n", len(args))
	for _, a := range args {
		fmt.Fprintf(&b, "$%d\r\n%s\r\n", len(a), a)
	}

	c.conn.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.conn.Write([]byte(b.String())); err != nil {
		c.t.Fatalf("write %v: %v", args, err)
	}
	reply, err := readReply(c.br)
	if err != nil {
		c.t.Fatalf("read reply to %v: %v", args, err)
	}
	return reply
}

// respError is a decoded "-..." reply.
type respError string

// readReply decodes one RESP2 reply: string, respError, int64, []byte,
// nil or []any.
func readReply(br *bufio.Reader) (any, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimSuffix(line, "\r\n")
	if line == "" {
		return nil, fmt.Errorf("empty reply line")
	}

	switch line[0] {
	case '+':
		return line[1:], nil
	case '-':
		return respError(line[1:]), nil
	case ':':
		return strconv.ParseInt(line[1:], 10, 64)
	case '$':
		n, err := strconv.Atoi(line[1:])
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, nil
		}
		buf := make([]byte, n+2)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, err
		}
		return buf[:n], nil
	case '*':
		n, err := strconv.Atoi(line[1:])
		if err != nil {
			return nil, err
		}
		out := make([]any, n)
		for i := range out {
			if out[i], err = readReply(br); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown reply type %q", line)
}

// ============================================================
// Server tests
// ============================================================

func TestServer_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Address != "127.0.0.1:6379" {
		t.Errorf("Address = %q", cfg.Address)
	}
	if cfg.ReadTimeout != 30*time.Second || cfg.WriteTimeout != 30*time.Second {
		t.Error("read/write timeouts should default to 30s")
	}
	if cfg.IdleTimeout != 5*time.Minute {
		t.Errorf("IdleTimeout = %v, want 5m", cfg.IdleTimeout)
	}
	if cfg.RateLimit != 1000 {
		t.Errorf("RateLimit = %v, want 1000", cfg.RateLimit)
	}
}

func TestServer_New_BulkLimitFromEngine(t *testing.T) {
	e := newTestEngine(t)
	srv := New(testConfig(), e, nil)

	if srv.cfg.MaxBulkLen != int(e.MaxPayload()) {
		t.Errorf("MaxBulkLen = %d, want %d", srv.cfg.MaxBulkLen, e.MaxPayload())
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	srv := New(testConfig(), newTestEngine(t), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	addr := srv.Addr()
	if addr == nil {
		t.Fatal("Addr() = nil after Start")
	}

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	conn.Write([]byte("PING\r\n"))
	reply, err := readReply(bufio.NewReader(conn))
	if err != nil || reply != "PONG" {
		t.Errorf("PING reply = %v, %v", reply, err)
	}
	conn.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	srv := New(testConfig(), newTestEngine(t), nil)
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestServer_ServeConn_PingQuit(t *testing.T) {
	srv := New(testConfig(), newTestEngine(t), nil)
	c := dial(t, srv)

	if reply := c.do("PING"); reply != "PONG" {
		t.Errorf("PING reply = %v, want PONG", reply)
	}
	if reply := c.do("PING", "hello"); string(reply.([]byte)) != "hello" {
		t.Errorf("PING hello reply = %v", reply)
	}
	if reply := c.do("QUIT"); reply != "OK" {
		t.Errorf("QUIT reply = %v, want OK", reply)
	}

	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Error("connection not closed after QUIT")
	}
}

func TestServer_ServeConn_ProtocolError(t *testing.T) {
	srv := New(testConfig(), newTestEngine(t), nil)
	c := dial(t, srv)

	c.conn.SetDeadline(time.Now().Add(time.Second))
	if _, err := c.conn.Write([]byte("*10000\r\n")); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	reply, err := readReply(c.br)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if e, ok := reply.(respError); !ok || !strings.Contains(string(e), "ERR") {
		t.Errorf("expected error reply, got %v", reply)
	}

	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Error("connection not closed after protocol error")
	}
}

func TestServer_ServeConn_BulkOverPayloadLimit(t *testing.T) {
	e := newTestEngine(t)
	srv := New(testConfig(), e, nil)
	c := dial(t, srv)

	header := fmt.Sprintf("*2\r\n$8\r\nPUSHBLOB\r\n$%d\r\n", e.MaxPayload()+1)
	c.conn.SetDeadline(time.Now().Add(time.Second))
	c.conn.Write([]byte(header))

	reply, _ := readReply(c.br)
	if e, ok := reply.(respError); !ok || !strings.Contains(string(e), "limit exceeded") {
		t.Errorf("expected limit error, got %v", reply)
	}
}

func TestConn_NewAndClose(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	conn := newConn(server)
	if conn.GetState().Authenticated {
		t.Error("new connection should not be authenticated")
	}
	if conn.RemoteAddr() == nil {
		t.Error("RemoteAddr() = nil")
	}

	if err := conn.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestConn_SetAndGetState(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	defer server.Close()

	conn := newConn(server)
	conn.SetState(ConnState{Authenticated: true})
	if !conn.GetState().Authenticated {
		t.Error("state not stored")
	}
}
