// Package notify delivers user-visible notifications raised by client flows.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/logging"
)

// Notification is a dismissible message shown to the viewer.
type Notification struct {
	Kind    apperr.Kind
	Title   string
	Message string
	// LoginShortcut is set for authentication-required notifications.
	LoginShortcut bool
}

// Notifier raises notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// FromError builds the notification for a failed action.
func FromError(title string, err error) Notification {
	kind := apperr.KindOf(err)
	if kind == apperr.KindUnknown {
		kind = apperr.KindTransient
	}
	return Notification{
		Kind:          kind,
		Title:         title,
		Message:       apperr.MessageOf(err, "Something went wrong, please try again."),
		LoginShortcut: kind == apperr.KindAuthRequired,
	}
}

// Writer prints notifications, one per line.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a Notifier printing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Notify implements Notifier.
func (n *Writer) Notify(ctx context.Context, note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()

	line := fmt.Sprintf("[%s] %s: %s", note.Kind, note.Title, note.Message)
	if note.LoginShortcut {
		line += " (run with CLIPVERSE_EMAIL and CLIPVERSE_PASSWORD to sign in)"
	}
	if _, err := fmt.Fprintln(n.w, line); err != nil {
		logging.FromContext(ctx).Warn("write notification", "error", err)
	}
}

// Log records notifications on the context logger only.
type Log struct{}

// Notify implements Notifier.
func (Log) Notify(ctx context.Context, note Notification) {
	logging.FromContext(ctx).Warn("notification", "kind", string(note.Kind), "title", note.Title, "message", note.Message)
}

// Recorder keeps every notification; useful in tests.
type Recorder struct {
	mu    sync.Mutex
	notes []Notification
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, note Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, note)
	r.mu.Unlock()
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}
