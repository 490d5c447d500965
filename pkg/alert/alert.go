// Package alert delivers rank-drop notifications to configured
// destinations.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Drop is one keyword that lost rank beyond the configured threshold.
type Drop struct {
	Keyword   string `json:"keyword"`
	Country   string `json:"country"`
	SubjectID string `json:"subject_id"`
	From      int    `json:"from"`
	To        int    `json:"to"`
	Delta     int    `json:"delta"`
}

// Notification is the data sent to alert destinations.
type Notification struct {
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Country string    `json:"country"`
	Date    time.Time `json:"date"`
	Drops   []Drop    `json:"drops"`
}

// Notifier delivers notifications to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}
