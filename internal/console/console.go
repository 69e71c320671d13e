// Package console implements the boot console and kernel log scrollback
// buffers (spec §4, §8 S6): a fixed-capacity ring of lines, each truncated
// to a maximum length, that saturates rather than grows once full.
//
// Rendering uses github.com/charmbracelet/x/ansi to strip or pass through
// ANSI styling the way the teacher's terminal-facing code
// (internal/starui, internal/term) renders boot and status output, and
// golang.org/x/term to detect whether output is an interactive terminal
// before deciding whether to colorize a rendered dump.
package console

import (
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
)

// MaxLineLen bounds a single pushed line (spec §8's push_line truncation
// rule).
const MaxLineLen = 256

// Ring is a fixed-capacity scrollback buffer of lines (spec §8 S6). It
// backs both the boot console (syscalls 40/41) and the kernel log
// (syscall 64); both are "push lines in, read back a window of the most
// recent N" buffers with identical saturation behavior.
type Ring struct {
	mu       sync.Mutex
	capacity int
	lines    []string
	total    uint64
}

// NewRing constructs a ring holding at most capacity lines.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{capacity: capacity}
}

// PushLine appends s, truncated to MaxLineLen bytes, discarding the oldest
// line once the ring is at capacity (spec §8 S6, boundary cases).
func (r *Ring) PushLine(s string) {
	if len(s) > MaxLineLen {
		s = s[:MaxLineLen]
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, s)
	if len(r.lines) > r.capacity {
		r.lines = r.lines[len(r.lines)-r.capacity:]
	}
	r.total++
}

// GetLine returns the line at visible index i (0 = oldest currently
// retained line), or ("", false) if i is out of range (spec §8 S6).
func (r *Ring) GetLine(i int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.lines) {
		return "", false
	}
	return r.lines[i], true
}

// LineCount returns the number of lines currently retained, saturating at
// capacity (spec §8 S6).
func (r *Ring) LineCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

// TotalPushed returns the lifetime count of lines ever pushed, including
// ones that have since scrolled out.
func (r *Ring) TotalPushed() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Dump joins every currently retained line with newlines, in oldest-first
// order. Render is built on it; syscalls 41 console_read and 64 klog_get
// read lines through GetLine instead.
func (r *Ring) Dump() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return []byte(strings.Join(r.lines, "\n"))
}

// Render returns Dump with ANSI escapes stripped if fd is not a terminal,
// or passed through unchanged if it is -- so a kernel log piped to a file
// stays plain text while an interactive console keeps its color.
func (r *Ring) Render(fd int, isTerminal func(int) bool) []byte {
	if isTerminal == nil {
		isTerminal = term.IsTerminal
	}
	out := r.Dump()
	if isTerminal(fd) {
		return out
	}
	return []byte(ansi.Strip(string(out)))
}
