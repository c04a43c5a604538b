// Package notify is the single surface for user-visible messages. Every
// component reports success, errors, and warnings through a Notifier; the
// CLI and TUI decide how the messages are shown.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity classifies a notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Dismiss durations. Errors stay on screen longer than the rest.
const (
	DefaultDuration = 5 * time.Second
	ErrorDuration   = 7 * time.Second
)

// Notification is one user-visible message.
type Notification struct {
	ID       string
	Severity Severity
	Message  string
	Duration time.Duration
	At       time.Time
}

// Notifier receives user-visible messages.
type Notifier interface {
	Notify(n Notification)
}

// New builds a notification with an ID and the severity's dismiss duration.
func New(severity Severity, message string) Notification {
	d := DefaultDuration
	if severity == SeverityError {
		d = ErrorDuration
	}
	return Notification{
		ID:       uuid.NewString(),
		Severity: severity,
		Message:  message,
		Duration: d,
		At:       time.Now(),
	}
}

// Success sends a success message through n.
func Success(n Notifier, message string) { n.Notify(New(SeveritySuccess, message)) }

// Error sends an error message through n.
func Error(n Notifier, message string) { n.Notify(New(SeverityError, message)) }

// Warning sends a warning message through n.
func Warning(n Notifier, message string) { n.Notify(New(SeverityWarning, message)) }

// Info sends an informational message through n.
func Info(n Notifier, message string) { n.Notify(New(SeverityInfo, message)) }

// LogNotifier writes notifications to the structured log. Used by the CLI,
// where messages go straight to the terminal.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(n Notification) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch n.Severity {
	case SeverityError:
		logger.Error(n.Message)
	case SeverityWarning:
		logger.Warn(n.Message)
	default:
		logger.Info(n.Message)
	}
}

// Hub fans notifications out to subscribers and keeps the active set for
// display surfaces that render them (the TUI). Expired notifications are
// pruned on read.
type Hub struct {
	mu     sync.Mutex
	active []Notification
	subs   []chan Notification
	now    func() time.Time
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{now: time.Now}
}

// Notify records n and delivers it to all subscribers. Delivery never
// blocks; a slow subscriber misses the message.
func (h *Hub) Notify(n Notification) {
	h.mu.Lock()
	h.pruneLocked()
	h.active = append(h.active, n)
	subs := make([]chan Notification, len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- n:
		default:
		}
	}
}

// Subscribe returns a channel receiving future notifications.
func (h *Hub) Subscribe() <-chan Notification {
	ch := make(chan Notification, 16)
	h.mu.Lock()
	h.subs = append(h.subs, ch)
	h.mu.Unlock()
	return ch
}

// Active returns the notifications that have not yet expired, oldest first.
func (h *Hub) Active() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pruneLocked()
	out := make([]Notification, len(h.active))
	copy(out, h.active)
	return out
}

// Dismiss removes a notification before its duration elapses.
func (h *Hub) Dismiss(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, n := range h.active {
		if n.ID == id {
			h.active = append(h.active[:i], h.active[i+1:]...)
			return
		}
	}
}

func (h *Hub) pruneLocked() {
	now := h.now()
	kept := h.active[:0]
	for _, n := range h.active {
		if n.Duration <= 0 || now.Sub(n.At) < n.Duration {
			kept = append(kept, n)
		}
	}
	h.active = kept
}
