package cart

import (
	"context"
	"log/slog"
	"sync"

	"storefront-cart/internal/model"
)

// Level is the severity of a shopper-facing notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is one toast shown to the shopper.
type Notification struct {
	Level     Level  `json:"level"`
	Message   string `json:"message"`
	ProductID string `json:"product_id,omitempty"`
}

// Notifier delivers shopper-facing notifications. Raw errors never reach it;
// messages name the affected product instead.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs n at info for successes and warn for failures.
func (l LogNotifier) Notify(ctx context.Context, n Notification) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if n.Level == LevelError {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "cart notification", "message", n.Message, "product_id", n.ProductID)
}

// RecordingNotifier keeps notifications in memory, in delivery order.
type RecordingNotifier struct {
	mu    sync.Mutex
	items []Notification
}

// Notify records n.
func (r *RecordingNotifier) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All returns a copy of every recorded notification.
func (r *RecordingNotifier) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Errors returns only failure notifications.
func (r *RecordingNotifier) Errors() []Notification {
	var out []Notification
	for _, n := range r.All() {
		if n.Level == LevelError {
			out = append(out, n)
		}
	}
	return out
}

// Drain returns and clears the recorded notifications.
func (r *RecordingNotifier) Drain() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.items
	r.items = nil
	return out
}

// Shopper-facing messages.
const (
	msgAdded     = "Item added to cart."
	msgIncreased = "Quantity increased."
	msgDecreased = "Quantity decreased."
	msgRemoved   = "Item removed from cart."
)

func successMessage(kind model.MutationKind) string {
	switch kind {
	case model.MutationAdd:
		return msgAdded
	case model.MutationIncrement:
		return msgIncreased
	case model.MutationDecrement:
		return msgDecreased
	default:
		return msgRemoved
	}
}

func failureMessage(kind model.MutationKind, title string) string {
	switch kind {
	case model.MutationAdd:
		return "Failed to add " + title + " to cart."
	case model.MutationRemove:
		return "Failed to remove " + title + " from cart."
	default:
		return "Failed to update " + title + " in cart. Please try again."
	}
}
