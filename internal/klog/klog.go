// Package klog implements the kernel log buffer backing syscall 64
// (klog_get, spec §4.8): a slog.Handler that renders each record as one
// line into a bounded console.Ring, so kernel subsystems log with the same
// log/slog call sites used everywhere else in this codebase while user
// programs can still retrieve the log through the syscall ABI.
package klog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tinyrange/riscv-core/internal/console"
)

// DefaultCapacity is the number of lines the kernel log buffer retains.
const DefaultCapacity = 512

// Buffer is a slog.Handler over a bounded line ring (spec §4.8's klog_get).
type Buffer struct {
	ring  *console.Ring
	mu    sync.Mutex
	attrs []slog.Attr
	group string
}

// NewBuffer constructs a kernel log buffer of DefaultCapacity lines.
func NewBuffer() *Buffer {
	return &Buffer{ring: console.NewRing(DefaultCapacity)}
}

// Ring exposes the underlying line ring for klog_get to read from.
func (b *Buffer) Ring() *console.Ring { return b.ring }

// Enabled implements slog.Handler.
func (b *Buffer) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler, formatting r as a single klog line:
// "LEVEL msg key=val key=val ...".
func (b *Buffer) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Level.String())
	sb.WriteByte(' ')
	sb.WriteString(r.Message)
	for _, a := range b.attrs {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
		return true
	})
	b.ring.PushLine(sb.String())
	return nil
}

// WithAttrs implements slog.Handler.
func (b *Buffer) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &Buffer{ring: b.ring, group: b.group}
	next.attrs = append(append([]slog.Attr(nil), b.attrs...), attrs...)
	return next
}

// WithGroup implements slog.Handler. Kernel log lines are flat: the group
// name is recorded on the returned handler, but Handle does not render it,
// so attribute keys are written without a group prefix.
func (b *Buffer) WithGroup(name string) slog.Handler {
	next := &Buffer{ring: b.ring, attrs: append([]slog.Attr(nil), b.attrs...)}
	if b.group != "" {
		next.group = b.group + "." + name
	} else {
		next.group = name
	}
	return next
}

// Get implements klog_get(n, buf, buflen): the most recent n lines,
// newline-joined, truncated to fit buflen bytes (spec §4.8).
func (b *Buffer) Get(n int, buflen int) []byte {
	count := b.ring.LineCount()
	if n <= 0 || n > count {
		n = count
	}
	lines := make([]string, 0, n)
	for i := count - n; i < count; i++ {
		if line, ok := b.ring.GetLine(i); ok {
			lines = append(lines, line)
		}
	}
	out := []byte(strings.Join(lines, "\n"))
	if buflen >= 0 && len(out) > buflen {
		out = out[:buflen]
	}
	return out
}
