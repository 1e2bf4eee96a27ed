// Package ecslog wraps the standard library logger with the small amount of
// terminal-awareness a hosting CLI would want: color only when attached to a
// real terminal, and human-readable counts/durations in diagnostics.
package ecslog

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

const (
	colorReset = "\x1b[0m"
	colorDim   = "\x1b[2m"
	colorCyan  = "\x1b[36m"
)

// Logger is a thin wrapper around *log.Logger that colors its prefix when
// writing to a terminal.
type Logger struct {
	*log.Logger
	color bool
}

// New builds a Logger writing to w, prefixed with name. Color is enabled
// only when w is an *os.File whose descriptor is a terminal.
func New(name string, w io.Writer) *Logger {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	prefix := name + " "
	if color {
		prefix = colorCyan + name + colorReset + " "
	}
	return &Logger{Logger: log.New(w, prefix, log.LstdFlags), color: color}
}

// Tick logs one scheduler phase: how many systems ran and how long it took.
func (l *Logger) Tick(phase string, systemCount int, d time.Duration) {
	if l.color {
		l.Printf("%sphase=%s systems=%d dur=%s%s", colorDim, phase, systemCount, d, colorReset)
		return
	}
	l.Printf("phase=%s systems=%d dur=%s", phase, systemCount, d)
}

// Merge logs a stage merge: how many deferred ops were replayed.
func (l *Logger) Merge(stageCount, opCount int) {
	l.Printf("merged %s ops from %s", humanize.Comma(int64(opCount)), humanize.Comma(int64(stageCount)))
}

// TableGrowth logs a table reaching a new row count, useful for spotting
// runaway archetype growth during development.
func (l *Logger) TableGrowth(family fmt.Stringer, rows int) {
	l.Printf("table %s now holds %s rows", family, humanize.Comma(int64(rows)))
}
