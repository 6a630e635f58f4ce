// Package platform wraps the OS-level notification surface.
package platform

import (
	"context"

	"github.com/lsanches/bico/internal/store"
)

// Permission is the platform notification permission state.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

// ClickHandler receives the target URL of a clicked notification.
type ClickHandler func(targetURL string)

// Notifier shows notifications on the OS surface. Implementations must be
// safe for use from multiple goroutines.
type Notifier interface {
	// RequestPermission reports whether the surface may be used.
	RequestPermission(ctx context.Context) Permission
	// Show displays a notification for the record. The record id is used
	// as the replacement tag so redeliveries update in place.
	Show(ctx context.Context, rec store.NotificationRecord) error
	// OnClick registers the handler invoked when a shown notification is
	// activated. At most one handler is active.
	OnClick(h ClickHandler)
}

// Noop is a Notifier that does nothing. Used when the desktop surface is
// unavailable or notifications are disabled.
type Noop struct{}

func (Noop) RequestPermission(context.Context) Permission          { return PermissionDenied }
func (Noop) Show(context.Context, store.NotificationRecord) error { return nil }
func (Noop) OnClick(ClickHandler)                                  {}
