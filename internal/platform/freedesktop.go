package platform

import (
	"context"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"github.com/lsanches/bico/internal/store"
)

// Freedesktop shows notifications through notify-send. Click dispatch is
// not available over the notify-send CLI, so OnClick handlers only fire
// for programmatic activations (e.g. a ctl client acting on a toast).
type Freedesktop struct {
	logger *zap.Logger

	mu      sync.Mutex
	handler ClickHandler
}

// NewFreedesktop creates a notify-send backed notifier.
func NewFreedesktop(logger *zap.Logger) *Freedesktop {
	return &Freedesktop{logger: logger}
}

// RequestPermission checks that notify-send is present on PATH.
func (f *Freedesktop) RequestPermission(_ context.Context) Permission {
	if _, err := exec.LookPath("notify-send"); err != nil {
		return PermissionDenied
	}
	return PermissionGranted
}

// Show displays the record via notify-send, tagged by record id.
func (f *Freedesktop) Show(ctx context.Context, rec store.NotificationRecord) error {
	args := []string{
		"--app-name=bico",
		"--hint=string:x-bico-tag:" + rec.ID,
	}
	if rec.Icon != "" {
		args = append(args, "--icon="+rec.Icon)
	}
	args = append(args, rec.Title, rec.Body)

	cmd := exec.CommandContext(ctx, "notify-send", args...)
	if err := cmd.Run(); err != nil {
		f.logger.Warn("notify-send failed", zap.Error(err), zap.String("id", rec.ID))
		return err
	}
	return nil
}

// OnClick registers the activation handler.
func (f *Freedesktop) OnClick(h ClickHandler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

// Activate simulates a user click for the given record, dispatching its
// target URL to the registered handler.
func (f *Freedesktop) Activate(rec store.NotificationRecord) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(rec.TargetURL)
	}
}
