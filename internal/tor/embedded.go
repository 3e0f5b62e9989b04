package tor

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/tornago"
)

// defaultStartupTimeout covers a cold bootstrap on a slow network.
const defaultStartupTimeout = 3 * time.Minute

// EmbeddedTor runs a private Tor daemon through tornago so a crawl can be
// routed over Tor without a system installation.
//
// Design decision: The daemon is started per crawl run rather than shared
// with a system Tor because:
//  1. Its circuits carry only this crawl's traffic
//  2. Both ports are OS-assigned, so parallel runs never collide
//  3. The process lives exactly as long as the crawl that started it
//
// Note: A cold bootstrap takes one to three minutes while Tor downloads the
// consensus and builds its first circuits. The crawl command only starts the
// daemon when --tor is given.
type EmbeddedTor struct {
	// process is the running daemon, nil when stopped.
	process *tornago.TorProcess

	// socksAddr is the daemon's SOCKS5 listener, set after a successful Start.
	socksAddr string

	// startupTimeout bounds the bootstrap in Start.
	startupTimeout time.Duration
}

// EmbeddedTorOption configures an EmbeddedTor.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout sets how long Start waits for Tor to bootstrap.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		if timeout > 0 {
			e.startupTimeout = timeout
		}
	}
}

// NewEmbeddedTor creates a stopped daemon manager.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{startupTimeout: defaultStartupTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches Tor on OS-assigned ports and blocks until it has
// bootstrapped or the startup timeout passes.
//
// tornago's launcher does not take a context, so ctx is checked once the
// daemon is up. A cancelled ctx stops the fresh daemon and returns ctx.Err().
func (e *EmbeddedTor) Start(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}

	if err := ctx.Err(); err != nil {
		_ = process.Stop() //nolint:errcheck // best effort
		return err
	}

	e.process = process
	e.socksAddr = process.SocksAddr()
	return nil
}

// Stop shuts the daemon down. It is a no-op when not running.
func (e *EmbeddedTor) Stop() error {
	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	e.socksAddr = ""
	return err
}

// SocksAddr returns the daemon's SOCKS5 address, or "" when not running.
func (e *EmbeddedTor) SocksAddr() string {
	return e.socksAddr
}

// IsRunning reports whether Start succeeded and Stop has not been called.
func (e *EmbeddedTor) IsRunning() bool {
	return e.process != nil
}

// NewClient returns a Client for the running daemon. The client is what the
// crawl command hands to the HTTP transport and, through ProxyURL, to the
// browser renderer.
func (e *EmbeddedTor) NewClient() (*Client, error) {
	if !e.IsRunning() {
		return nil, ErrNotRunning
	}
	return NewClient(e.socksAddr)
}
