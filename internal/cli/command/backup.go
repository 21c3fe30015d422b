package command

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/yndnr/stablemem/internal/cli/connection"
	"github.com/yndnr/stablemem/internal/cli/output"
	"github.com/yndnr/stablemem/internal/core/domain"
	"github.com/yndnr/stablemem/internal/storage/stream"
)

// Backup directory layout.
const (
	ManifestFile = "manifest.yaml"
	DataFile     = "pages.bin"

	DefaultChunkPages = 32
	DefaultRetries    = 3
)

// Manifest describes a stable memory backup directory.
type Manifest struct {
	ID          string    `json:"id" yaml:"id"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	Server      string    `json:"server" yaml:"server"`
	PageSize    uint64    `json:"page_size" yaml:"page_size"`
	StablePages uint64    `json:"stable_pages" yaml:"stable_pages"`
	ChunkPages  uint64    `json:"chunk_pages" yaml:"chunk_pages"`
	DataFile    string    `json:"data_file" yaml:"data_file"`
	Chunks      []Chunk   `json:"chunks" yaml:"chunks"`
}

// Chunk is one streamed page range. Offset is in bytes.
type Chunk struct {
	Offset uint64 `json:"offset" yaml:"offset"`
	Pages  uint64 `json:"pages" yaml:"pages"`
	Hash   string `json:"hash" yaml:"hash"`
}

// Size returns the chunk length in bytes.
func (ch Chunk) Size() uint64 { return ch.Pages * domain.PageSize }

// Size returns the backed up region length in bytes.
func (m *Manifest) Size() uint64 { return m.StablePages * m.PageSize }

// BackupCommand returns the backup command.
func BackupCommand() *cli.Command {
	dirFlag := &cli.StringFlag{
		Name:     "dir",
		Aliases:  []string{"d"},
		Usage:    "Backup directory",
		Required: true,
	}
	retriesFlag := &cli.IntFlag{
		Name:  "retries",
		Usage: "Attempts per chunk on temporary failures",
		Value: DefaultRetries,
	}

	return &cli.Command{
		Name:  "backup",
		Usage: "Copy stable memory out of and into a server",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Stream the whole stable region into a backup directory",
				Flags: []cli.Flag{
					dirFlag,
					&cli.Uint64Flag{
						Name:  "chunk-pages",
						Usage: "Pages per request",
						Value: DefaultChunkPages,
					},
					retriesFlag,
				},
				Action: backupCreateAction,
			},
			{
				Name:   "restore",
				Usage:  "Stream a backup directory back into stable memory",
				Flags:  []cli.Flag{dirFlag, retriesFlag},
				Action: backupRestoreAction,
			},
			{
				Name:   "verify",
				Usage:  "Check a backup directory against its manifest",
				Flags:  []cli.Flag{dirFlag},
				Action: backupVerifyAction,
			},
		},
	}
}

func backupCreateAction(c *cli.Context) error {
	chunkPages := c.Uint64("chunk-pages")
	if chunkPages == 0 {
		return fmt.Errorf("--chunk-pages must be positive")
	}
	dir := c.String("dir")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(dir, ManifestFile)); err == nil {
		return fmt.Errorf("%s already contains a backup", dir)
	}

	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	if limit := serverChunkPages(c, client); limit > 0 && chunkPages > limit {
		if ParseGlobalFlags(c).Verbose {
			fmt.Fprintf(c.App.ErrWriter, "server accepts at most %d pages per call, using %d\n", limit, limit)
		}
		chunkPages = limit
	}
	mh, err := fetchHeader(c, client, true)
	if err != nil {
		return err
	}

	m := &Manifest{
		ID:          ulid.Make().String(),
		CreatedAt:   time.Now().UTC(),
		Server:      client.Server(),
		PageSize:    domain.PageSize,
		StablePages: mh.StablePages,
		ChunkPages:  chunkPages,
		DataFile:    DataFile,
	}

	f, err := os.OpenFile(filepath.Join(dir, DataFile), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	bar := output.NewProgressBar(c.App.ErrWriter, "backup", m.Size())
	for page := uint64(0); page < m.StablePages; page += chunkPages {
		n := min(chunkPages, m.StablePages-page)
		ch := Chunk{Offset: page * domain.PageSize, Pages: n}

		var data []byte
		err := withRetry(c, c.Int("retries"), func() error {
			var err error
			data, err = fetchChunk(c, client, ch)
			return err
		})
		if err != nil {
			return fmt.Errorf("chunk at offset %d: %w", ch.Offset, err)
		}
		if _, err := f.Write(data); err != nil {
			return err
		}
		ch.Hash = stream.ChunkHash(data)
		m.Chunks = append(m.Chunks, ch)
		bar.Add(len(data))
	}
	bar.Finish()

	if err := f.Sync(); err != nil {
		return err
	}
	if err := writeManifest(dir, m); err != nil {
		return err
	}
	return render(c, m, manifestTable(m))
}

// fetchChunk downloads one chunk and checks it against the server's hash.
func fetchChunk(c *cli.Context, client *connection.HTTPClient, ch Chunk) ([]byte, error) {
	path := fmt.Sprintf("/v1/stable/backup?offset=%d&pages=%d", ch.Offset, ch.Pages)
	data, header, err := client.GetBytes(c.Context, path)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) != ch.Size() {
		return nil, fmt.Errorf("short chunk: got %d bytes, want %d", len(data), ch.Size())
	}
	if want := header.Get("X-Chunk-Hash"); want != "" && want != stream.ChunkHash(data) {
		return nil, fmt.Errorf("chunk hash mismatch: server %s, received %s", want, stream.ChunkHash(data))
	}
	return data, nil
}

func backupRestoreAction(c *cli.Context) error {
	dir := c.String("dir")
	m, err := readManifest(dir)
	if err != nil {
		return err
	}
	f, err := openData(dir, m)
	if err != nil {
		return err
	}
	defer f.Close()

	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	limit := serverChunkPages(c, client)
	bar := output.NewProgressBar(c.App.ErrWriter, "restore", m.Size())
	var last restoreResult
	for _, ch := range m.Chunks {
		data, err := readChunk(f, ch)
		if err != nil {
			return err
		}
		for _, part := range splitChunk(ch, data, limit) {
			header := http.Header{}
			header.Set("X-Chunk-Hash", part.Hash)
			path := fmt.Sprintf("/v1/stable/restore?offset=%d", part.Offset)
			body := data[part.Offset-ch.Offset:][:part.Size()]

			err = withRetry(c, c.Int("retries"), func() error {
				return client.PutBytes(c.Context, path, body, header, &last)
			})
			if err != nil {
				return fmt.Errorf("chunk at offset %d: %w", part.Offset, err)
			}
			bar.Add(len(body))
		}
	}
	bar.Finish()

	fmt.Fprintf(c.App.Writer, "Restored %d pages (%s) from backup %s, server stable pages: %d\n",
		m.StablePages, humanize.IBytes(m.Size()), m.ID, last.StablePages)
	return nil
}

// serverChunkPages returns the most pages the server moves per stream
// call, or 0 when its status is not readable with the current key.
func serverChunkPages(c *cli.Context, client *connection.HTTPClient) uint64 {
	var st statusSummary
	if err := client.Get(c.Context, "/admin/v1/status/summary", &st); err != nil {
		return 0
	}
	return st.Engine.MaxPayload / domain.PageSize
}

// splitChunk cuts a verified chunk into parts of at most limit pages, each
// with its own hash. A zero limit or a small chunk stays whole.
func splitChunk(ch Chunk, data []byte, limit uint64) []Chunk {
	if limit == 0 || ch.Pages <= limit {
		return []Chunk{ch}
	}
	var parts []Chunk
	for page := uint64(0); page < ch.Pages; page += limit {
		part := Chunk{Offset: ch.Offset + page*domain.PageSize, Pages: min(limit, ch.Pages-page)}
		start := page * domain.PageSize
		part.Hash = stream.ChunkHash(data[start : start+part.Size()])
		parts = append(parts, part)
	}
	return parts
}

func backupVerifyAction(c *cli.Context) error {
	dir := c.String("dir")
	m, err := readManifest(dir)
	if err != nil {
		return err
	}
	f, err := openData(dir, m)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, ch := range m.Chunks {
		if _, err := readChunk(f, ch); err != nil {
			return err
		}
	}
	return render(c, m, manifestTable(m))
}

func manifestTable(m *Manifest) *output.Table {
	table := &output.Table{Headers: []string{"FIELD", "VALUE"}}
	table.AddRow("ID", m.ID)
	table.AddRow("Created", m.CreatedAt.Format(time.RFC3339))
	table.AddRow("Server", m.Server)
	table.AddRow("Stable pages", fmt.Sprint(m.StablePages))
	table.AddRow("Size", humanize.IBytes(m.Size()))
	table.AddRow("Chunks", fmt.Sprint(len(m.Chunks)))
	return table
}

// withRetry runs fn up to attempts times while it fails with a temporary
// error, backing off linearly.
func withRetry(c *cli.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !connection.IsTemporary(err) {
			return err
		}
		if ParseGlobalFlags(c).Verbose {
			fmt.Fprintf(c.App.ErrWriter, "retrying after: %v\n", err)
		}
		select {
		case <-c.Context.Done():
			return c.Context.Err()
		case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
		}
	}
	return err
}

func writeManifest(dir string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, ManifestFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// readManifest loads and sanity-checks a manifest. The chunks must tile the
// region from offset 0 without gaps.
func readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.PageSize != domain.PageSize {
		return nil, fmt.Errorf("manifest page size %d, want %d", m.PageSize, domain.PageSize)
	}
	if m.DataFile == "" || filepath.Base(m.DataFile) != m.DataFile {
		return nil, fmt.Errorf("manifest data file %q is invalid", m.DataFile)
	}

	var next uint64
	for _, ch := range m.Chunks {
		if ch.Offset != next {
			return nil, fmt.Errorf("manifest chunk at offset %d, want %d", ch.Offset, next)
		}
		next += ch.Size()
	}
	if next != m.Size() {
		return nil, fmt.Errorf("manifest chunks cover %d bytes, want %d", next, m.Size())
	}
	return &m, nil
}

func openData(dir string, m *Manifest) (*os.File, error) {
	f, err := os.Open(filepath.Join(dir, m.DataFile))
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if uint64(st.Size()) != m.Size() {
		f.Close()
		return nil, fmt.Errorf("%s is %d bytes, manifest says %d", m.DataFile, st.Size(), m.Size())
	}
	return f, nil
}

var errChunkHash = errors.New("chunk hash mismatch")

// readChunk reads ch from the data file and checks its hash.
func readChunk(f *os.File, ch Chunk) ([]byte, error) {
	data := make([]byte, ch.Size())
	if _, err := f.ReadAt(data, int64(ch.Offset)); err != nil {
		return nil, err
	}
	if got := stream.ChunkHash(data); got != ch.Hash {
		return nil, fmt.Errorf("%w at offset %d: manifest %s, data %s", errChunkHash, ch.Offset, ch.Hash, got)
	}
	return data, nil
}
