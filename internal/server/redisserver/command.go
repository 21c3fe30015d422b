package redisserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"strconv"

	"github.com/yndnr/stablemem/internal/core/domain"
	"github.com/yndnr/stablemem/internal/infra/ratelimit"
	"github.com/yndnr/stablemem/internal/storage/snapshot"
	"github.com/yndnr/stablemem/internal/telemetry/logger"
	"github.com/yndnr/stablemem/internal/telemetry/metric"
	"github.com/yndnr/stablemem/pkg/token"
)

// Engine is the storage surface served over RESP.
type Engine interface {
	PushBlob(ctx context.Context, blob []byte) (uint64, error)
	SaveSnapshot(ctx context.Context) (*snapshot.Info, error)
	LoadSnapshot(ctx context.Context) (*snapshot.Info, error)
	MemoryHeader(ctx context.Context) domain.MemoryHeader
	TrustedMemoryHeader(ctx context.Context) (domain.MemoryHeader, error)
	StreamBackup(ctx context.Context, offset, pages uint64) ([]byte, error)
	StreamRestore(ctx context.Context, offset uint64, data []byte) error
	MaxPayload() uint64
}

// formatRedisError converts an error to a Redis error string.
// For DomainErrors, returns "ERR <code> <message>".
// For other errors, returns "ERR <message>".
func formatRedisError(err error) string {
	var de *domain.DomainError
	if errors.As(err, &de) {
		if de.Details != "" {
			return "ERR " + de.Code + " " + de.Message + ": " + de.Details
		}
		return "ERR " + de.Code + " " + de.Message
	}
	return "ERR " + err.Error()
}

// CommandHandler handles Redis commands.
type CommandHandler struct {
	engine   Engine
	apiKey   string
	logger   *slog.Logger
	metrics  *metric.Registry
	limiters *ratelimit.Registry
}

// NewCommandHandler creates a new CommandHandler.
func NewCommandHandler(engine Engine, cfg *Config, log *slog.Logger) *CommandHandler {
	if log == nil {
		log = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &CommandHandler{
		engine:   engine,
		apiKey:   cfg.APIKey,
		logger:   log,
		metrics:  cfg.Metrics,
		limiters: ratelimit.NewRegistry(cfg.RateLimit, cfg.RateBurst),
	}
}

// Handle handles a Redis command (RESP array of bulk strings).
func (h *CommandHandler) Handle(ctx context.Context, conn *Conn, args [][]byte) {
	if len(args) == 0 {
		_ = WriteError(conn.bw, "ERR no command")
		return
	}

	cmdName := normalizeCommandName(args[0])
	status := "OK"
	defer func() {
		h.metrics.RecordRequest("redis", metricName(cmdName), status)
	}()

	// Connection-level commands (do not require authentication).
	switch cmdName {
	case "PING":
		h.handlePing(conn, args)
		return
	case "AUTH":
		if !h.handleAuth(conn, args) {
			status = "ERR"
		}
		return
	case "QUIT":
		h.handleQuit(conn, args)
		return
	}

	if h.apiKey != "" && !conn.GetState().Authenticated {
		status = "NOAUTH"
		_ = WriteError(conn.bw, "NOAUTH Authentication required")
		return
	}

	// Rate limiting check (per-IP).
	if h.limiters.Enabled() && !h.limiters.Allow(remoteHost(conn.RemoteAddr())) {
		status = "RATE"
		_ = WriteError(conn.bw, "ERR "+domain.ErrRateLimited.Code+" rate limit exceeded")
		return
	}

	ctx = logger.WithOp(ctx, cmdName)

	var err error
	switch cmdName {
	case "PUSHBLOB":
		err = h.handlePushBlob(ctx, conn, args)
	case "SAVESNAPSHOT":
		err = h.handleSaveSnapshot(ctx, conn, args)
	case "LOADSNAPSHOT":
		err = h.handleLoadSnapshot(ctx, conn, args)
	case "MEMHEADER":
		err = h.handleMemHeader(ctx, conn, args)
	case "STREAMBACKUP":
		err = h.handleStreamBackup(ctx, conn, args)
	case "STREAMRESTORE":
		err = h.handleStreamRestore(ctx, conn, args)
	default:
		status = "UNKNOWN"
		_ = WriteError(conn.bw, "ERR unknown command '"+cmdName+"'")
		return
	}

	if err != nil {
		status = "ERR"
		if !domain.IsValidationError(err) && !domain.IsEncodingError(err) {
			h.logger.WarnContext(ctx, "redis command failed", "error", err)
		}
		_ = WriteError(conn.bw, formatRedisError(err))
	}
}

func (h *CommandHandler) handlePing(conn *Conn, args [][]byte) {
	if len(args) > 1 {
		_ = WriteBulk(conn.bw, args[1])
		return
	}
	_ = WriteSimpleString(conn.bw, "PONG")
}

// handleAuth handles AUTH <key>. The two-argument form AUTH <user> <key>
// ignores the user name.
func (h *CommandHandler) handleAuth(conn *Conn, args [][]byte) bool {
	var key []byte
	switch len(args) {
	case 2:
		key = args[1]
	case 3:
		key = args[2]
	default:
		_ = WriteError(conn.bw, "ERR wrong number of arguments for 'AUTH' command")
		return false
	}

	if h.apiKey == "" {
		_ = WriteError(conn.bw, "ERR AUTH called without any password configured")
		return false
	}
	if !token.Equal(string(key), h.apiKey) {
		_ = WriteError(conn.bw, "ERR "+domain.ErrUnauthorized.Code+" invalid credentials")
		return false
	}

	conn.SetState(ConnState{Authenticated: true})
	_ = WriteSimpleString(conn.bw, "OK")
	return true
}

func (h *CommandHandler) handleQuit(conn *Conn, _ [][]byte) {
	_ = WriteSimpleString(conn.bw, "OK")
	_ = conn.bw.Flush()
	_ = conn.Close()
}

// PUSHBLOB <blob>
//
// Replies with the assigned key as an integer.
func (h *CommandHandler) handlePushBlob(ctx context.Context, conn *Conn, args [][]byte) error {
	if len(args) != 2 {
		return wrongArgs("PUSHBLOB")
	}
	key, err := h.engine.PushBlob(ctx, args[1])
	if err != nil {
		return err
	}
	return WriteInteger(conn.bw, int64(key))
}

// SAVESNAPSHOT
//
// Replies with the snapshot info as a JSON bulk string.
func (h *CommandHandler) handleSaveSnapshot(ctx context.Context, conn *Conn, args [][]byte) error {
	if len(args) != 1 {
		return wrongArgs("SAVESNAPSHOT")
	}
	info, err := h.engine.SaveSnapshot(ctx)
	if err != nil {
		return err
	}
	return writeJSON(conn.bw, info)
}

// LOADSNAPSHOT
func (h *CommandHandler) handleLoadSnapshot(ctx context.Context, conn *Conn, args [][]byte) error {
	if len(args) != 1 {
		return wrongArgs("LOADSNAPSHOT")
	}
	info, err := h.engine.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	return writeJSON(conn.bw, info)
}

// MEMHEADER [TRUSTED]
//
// Replies with a flat array of field names and sizes.
func (h *CommandHandler) handleMemHeader(ctx context.Context, conn *Conn, args [][]byte) error {
	var mh domain.MemoryHeader
	switch {
	case len(args) == 1:
		mh = h.engine.MemoryHeader(ctx)
	case len(args) == 2 && normalizeCommandName(args[1]) == "TRUSTED":
		var err error
		if mh, err = h.engine.TrustedMemoryHeader(ctx); err != nil {
			return err
		}
	case len(args) == 2:
		return domain.ErrBadRequest.WithDetails("syntax error")
	default:
		return wrongArgs("MEMHEADER")
	}

	return WriteFields(conn.bw,
		[]string{"heap_pages", "heap_size", "stable_pages", "stable_size", "all"},
		[]uint64{mh.HeapPages, mh.HeapSize, mh.StablePages, mh.StableSize, mh.All})
}

// STREAMBACKUP <offset> <pages>
//
// Replies with the raw bytes as a bulk string.
func (h *CommandHandler) handleStreamBackup(ctx context.Context, conn *Conn, args [][]byte) error {
	if len(args) != 3 {
		return wrongArgs("STREAMBACKUP")
	}
	offset, err := parseUint(args[1], "offset")
	if err != nil {
		return err
	}
	pages, err := parseUint(args[2], "pages")
	if err != nil {
		return err
	}

	data, err := h.engine.StreamBackup(ctx, offset, pages)
	if err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	return WriteBulk(conn.bw, data)
}

// STREAMRESTORE <offset> <data>
func (h *CommandHandler) handleStreamRestore(ctx context.Context, conn *Conn, args [][]byte) error {
	if len(args) != 3 {
		return wrongArgs("STREAMRESTORE")
	}
	offset, err := parseUint(args[1], "offset")
	if err != nil {
		return err
	}
	if err := h.engine.StreamRestore(ctx, offset, args[2]); err != nil {
		return err
	}
	return WriteSimpleString(conn.bw, "OK")
}

func wrongArgs(cmd string) error {
	return domain.ErrBadRequest.WithDetails("wrong number of arguments for '" + cmd + "' command")
}

func parseUint(b []byte, name string) (uint64, error) {
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0, domain.ErrInvalidArgument.WithDetailsf("%s is not a non-negative integer", name)
	}
	return v, nil
}

func writeJSON(w *bufio.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return WriteBulk(w, data)
}

// remoteHost strips the port from a connection's remote address.
func remoteHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// metricName bounds the label set to known commands.
func metricName(cmd string) string {
	switch cmd {
	case "PING", "AUTH", "QUIT", "PUSHBLOB", "SAVESNAPSHOT", "LOADSNAPSHOT",
		"MEMHEADER", "STREAMBACKUP", "STREAMRESTORE":
		return cmd
	default:
		return "OTHER"
	}
}
