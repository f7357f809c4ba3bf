// Package power manages the media server's power state: wake-on-LAN, remote
// shutdown, and the daily schedule driving both.
package power

import (
	"context"
	"errors"
	"log/slog"
)

// Adapter controls the media server's power state.
type Adapter interface {
	// SendWake broadcasts a wake signal to the server.
	SendWake(ctx context.Context) error
	// Reachable reports whether the server is currently up.
	Reachable(ctx context.Context) bool
	// Shutdown asks the server to power off.
	Shutdown(ctx context.Context) error
}

// ErrNotConfigured is returned when a power operation lacks configuration.
var ErrNotConfigured = errors.New("power adapter not configured")

// Prober reports server liveness. The Tautulli monitor satisfies this.
type Prober interface {
	Reachable(ctx context.Context) bool
}

// ServerAdapter is the production Adapter: WOL for wake, an HTTP liveness
// probe for reachability, SSH for shutdown.
type ServerAdapter struct {
	wol   *WakeSender
	probe Prober
	ssh   *SSHShutdown
	log   *slog.Logger
}

// NewServerAdapter assembles the production power adapter. Any part may be
// nil; the corresponding operation then fails with ErrNotConfigured.
func NewServerAdapter(wol *WakeSender, probe Prober, ssh *SSHShutdown, log *slog.Logger) *ServerAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &ServerAdapter{wol: wol, probe: probe, ssh: ssh, log: log.With("component", "power")}
}

func (a *ServerAdapter) SendWake(ctx context.Context) error {
	if a.wol == nil {
		return ErrNotConfigured
	}
	if err := a.wol.Send(ctx); err != nil {
		return err
	}
	a.log.Info("wake signal sent")
	return nil
}

func (a *ServerAdapter) Reachable(ctx context.Context) bool {
	if a.probe == nil {
		return false
	}
	return a.probe.Reachable(ctx)
}

func (a *ServerAdapter) Shutdown(ctx context.Context) error {
	if a.ssh == nil {
		return ErrNotConfigured
	}
	if err := a.ssh.Shutdown(ctx); err != nil {
		return err
	}
	a.log.Info("shutdown issued")
	return nil
}
