package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/go-modpackinstaller/pkg/download"
)

// progressPrinter writes a line whenever the whole-percent progress changes
type progressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	percent int
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, percent: -1}
}

func (p *progressPrinter) observe(snap download.Progress) {
	percent := int(snap.Fraction() * 100)
	p.mu.Lock()
	defer p.mu.Unlock()
	if percent == p.percent {
		return
	}
	p.percent = percent
	fmt.Fprintf(p.w, "[%3d%%] %s\n", percent, snap.CurrentItemLabel)
}
