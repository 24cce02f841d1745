package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/florianilch/deskclient/internal/authclient"
)

// loginHint follows the session-expired notice in a terminal.
const loginHint = "Run `deskclient login` to start a new session."

// ShellNotifier prints user-facing notices to a terminal stream.
type ShellNotifier struct {
	mu          sync.Mutex
	w           io.Writer
	loginActive atomic.Bool
}

// Compile-time check that ShellNotifier implements authclient.Notifier
var _ authclient.Notifier = (*ShellNotifier)(nil)

// NewShellNotifier creates a notifier writing to w.
func NewShellNotifier(w io.Writer) *ShellNotifier {
	return &ShellNotifier{w: w}
}

// Notify implements authclient.Notifier.
func (n *ShellNotifier) Notify(ctx context.Context, ev authclient.Event) {
	attrs := []any{"kind", ev.Kind.String(), "method", ev.Method, "path", ev.Path}
	if ev.Err != nil {
		attrs = append(attrs, "error", ev.Err)
	}
	slog.WarnContext(ctx, ev.Message, attrs...)

	n.mu.Lock()
	defer n.mu.Unlock()
	_, _ = fmt.Fprintln(n.w, ev.Message)
	if ev.Kind == authclient.EventSessionExpired {
		_, _ = fmt.Fprintln(n.w, loginHint)
	}
}

// LoginActive reports whether a login is in progress.
func (n *ShellNotifier) LoginActive() bool {
	return n.loginActive.Load()
}

// beginLogin marks the login flow active until the returned func is called.
func (n *ShellNotifier) beginLogin() func() {
	n.loginActive.Store(true)
	return func() { n.loginActive.Store(false) }
}
