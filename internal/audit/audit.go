// Package audit buffers audit_log writes so a burst of signing decisions
// or dashboard actions never blocks the HTTP handler that produced them.
// Adapted from the teacher's per-tenant audit.Writer: the tenant/sqlc
// plumbing is gone (this system has one schema and one store.Store), and
// flush now calls store.AppendAuditLog directly.
package audit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/duskline/bunker/internal/store"
)

// Entry is a single audit_log row awaiting write.
type Entry struct {
	Type      string
	Method    string
	Params    string
	KeyUserID *uuid.UUID
}

// Writer is an async, buffered audit log writer.
type Writer struct {
	st      *store.Store
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
)

// NewWriter creates an audit Writer. Call Start to begin processing entries.
func NewWriter(st *store.Store, logger *slog.Logger) *Writer {
	return &Writer{
		st:      st,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start launches the background goroutine that writes audit entries to the
// store and returns immediately. The goroutine exits when Close is called,
// or when ctx is cancelled after writing the entries already buffered.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry for async writing. It never blocks the
// caller; if the buffer is full the entry is dropped and a warning is
// logged.
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry",
			"type", entry.Type, "method", entry.Method)
	}
}

// LogFromRequest is a convenience wrapper that also logs the requesting
// IP and user agent at debug level — they have no column in audit_log,
// so this is the only record of them.
func (w *Writer) LogFromRequest(r *http.Request, entry Entry) {
	ip := clientIP(r)
	w.logger.Debug("audit event",
		"type", entry.Type, "method", entry.Method,
		"remote_ip", ip, "user_agent", r.Header.Get("User-Agent"))
	w.Log(entry)
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				return
			}
			w.write(entry)
		case <-ticker.C:
			// Nothing to batch — store.AppendAuditLog is one row at a
			// time, so the ticker just keeps the loop alive for select
			// fairness between the channel and ctx.Done().
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						return
					}
					w.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.st.AppendAuditLog(ctx, e.Type, e.Method, e.Params, e.KeyUserID); err != nil {
		w.logger.Error("writing audit log entry", "error", err, "type", e.Type, "method", e.Method)
	}
}

// clientIP extracts the client IP address from the request, preferring
// X-Forwarded-For and X-Real-IP headers over RemoteAddr.
func clientIP(r *http.Request) netip.Addr {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if addr, err := netip.ParseAddr(strings.TrimSpace(parts[0])); err == nil {
			return addr
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}
