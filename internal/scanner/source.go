// Package scanner reads scan events from line-oriented devices.
// Keyboard-wedge and serial barcode scanners type the decoded text
// followed by a newline, so one line is one raw scan event.
package scanner

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/harrylevesque/scanfulfill/internal/clock"
	"github.com/harrylevesque/scanfulfill/internal/models"
)

// maxLine bounds a single scan; 2D codes rarely exceed a few KB.
const maxLine = 64 << 10

type Source struct {
	r     io.Reader
	clock clock.Clock
}

func New(r io.Reader, c clock.Clock) *Source {
	if c == nil {
		c = clock.Real()
	}
	return &Source{r: r, clock: c}
}

// Run sends one event per line to out until the reader is exhausted or
// ctx is done. It returns nil at EOF. Trailing carriage returns are
// stripped; blank lines are passed on and left to the gate.
func (s *Source) Run(ctx context.Context, out chan<- models.ScanEvent) error {
	sc := bufio.NewScanner(s.r)
	sc.Buffer(make([]byte, 0, 4096), maxLine)
	for sc.Scan() {
		ev := models.ScanEvent{
			Text:       strings.TrimRight(sc.Text(), "\r"),
			ObservedAt: s.clock.Now(),
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sc.Err()
}
