package output

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
)

// ProgressBar draws a single-line byte counter for transfers.
type ProgressBar struct {
	mu      sync.Mutex
	w       io.Writer
	title   string
	total   uint64
	current uint64
	width   int
}

// NewProgressBar creates a progress bar expecting total bytes. A zero total
// shows only the running count.
func NewProgressBar(w io.Writer, title string, total uint64) *ProgressBar {
	return &ProgressBar{
		w:     w,
		title: title,
		total: total,
		width: 30,
	}
}

// Add records n more transferred bytes.
func (p *ProgressBar) Add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current += uint64(n)
	p.render()
}

// Finish draws the final state and ends the line.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total > 0 {
		p.current = p.total
	}
	p.render()
	fmt.Fprintln(p.w)
}

func (p *ProgressBar) render() {
	if p.total == 0 {
		fmt.Fprintf(p.w, "\r%s %s", p.title, humanize.IBytes(p.current))
		return
	}

	ratio := float64(p.current) / float64(p.total)
	if ratio > 1 {
		ratio = 1
	}
	filled := int(float64(p.width) * ratio)

	fmt.Fprintf(p.w, "\r%s [%s%s] %3.0f%% (%s/%s)",
		p.title,
		strings.Repeat("#", filled),
		strings.Repeat(".", p.width-filled),
		ratio*100,
		humanize.IBytes(p.current),
		humanize.IBytes(p.total),
	)
}
