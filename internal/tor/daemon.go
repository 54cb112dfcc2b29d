package tor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultStartupTimeout is the bootstrap limit used unless
// WithStartupTimeout says otherwise.
const DefaultStartupTimeout = 3 * time.Minute

// ErrNotRunning is returned by operations that need a started daemon.
var ErrNotRunning = errors.New("embedded Tor daemon is not running")

// Daemon manages an embedded Tor process.
//
// Bootstrapping downloads the network consensus and builds the first
// circuits, which usually takes one to three minutes.
type Daemon struct {
	startupTimeout time.Duration
	logger         *slog.Logger

	mu        sync.Mutex
	process   *tornago.TorProcess
	socksAddr string
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithStartupTimeout sets the maximum time to wait for Tor to bootstrap.
// Non-positive values are ignored.
func WithStartupTimeout(timeout time.Duration) Option {
	return func(d *Daemon) {
		if timeout > 0 {
			d.startupTimeout = timeout
		}
	}
}

// WithLogger sets the logger. slog.Default() is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Daemon) {
		d.logger = logger
	}
}

// NewDaemon returns an unstarted Daemon.
func NewDaemon(opts ...Option) *Daemon {
	d := &Daemon{startupTimeout: DefaultStartupTimeout}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Start launches the daemon and blocks until it has bootstrapped, the
// startup timeout expires or ctx is done. Starting a running daemon is a
// no-op.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.process != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(d.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	d.logger.Info("starting embedded Tor daemon", "startup_timeout", d.startupTimeout)
	started := time.Now()

	// StartTorDaemon does not take a context; run it aside so cancellation
	// is noticed, and stop the process if it comes up after we gave up.
	type launch struct {
		process *tornago.TorProcess
		err     error
	}
	done := make(chan launch, 1)
	go func() {
		p, err := tornago.StartTorDaemon(launchCfg)
		done <- launch{process: p, err: err}
	}()

	var l launch
	select {
	case l = <-done:
	case <-ctx.Done():
		go func() {
			if l := <-done; l.process != nil {
				_ = l.process.Stop() //nolint:errcheck
			}
		}()
		return ctx.Err()
	}
	if l.err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", l.err)
	}

	d.process = l.process
	d.socksAddr = dialable(l.process.SocksAddr())

	d.logger.Info("embedded Tor daemon started",
		"socks_addr", d.socksAddr,
		"control_addr", dialable(l.process.ControlAddr()),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return nil
}

// Stop shuts the daemon down. It is safe to call on an unstarted or
// already stopped Daemon.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.process == nil {
		return nil
	}
	err := d.process.Stop()
	d.process = nil
	d.socksAddr = ""
	d.logger.Debug("embedded Tor daemon stopped")
	return err
}

// SocksAddr returns the "host:port" of the SOCKS5 listener, or
// ErrNotRunning.
func (d *Daemon) SocksAddr() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.process == nil {
		return "", ErrNotRunning
	}
	return d.socksAddr, nil
}

// dialable turns a wildcard listen address such as ":9050" into one a
// client can dial.
func dialable(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		return net.JoinHostPort("127.0.0.1", port)
	}
	return addr
}
