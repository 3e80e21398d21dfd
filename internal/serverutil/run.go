// Package serverutil runs an http.Server under context control: Run blocks
// until the listener fails or the context is cancelled, then drains in-flight
// requests before returning.
package serverutil

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// DefaultShutdownTimeout bounds the graceful drain after cancellation.
const DefaultShutdownTimeout = 10 * time.Second

// Options tunes Run. CertFile and KeyFile enable TLS together; setting only
// one is an error.
type Options struct {
	CertFile        string
	KeyFile         string
	ShutdownTimeout time.Duration
	// Ready, when non-nil, is closed once the listener is accepting
	// connections.
	Ready chan<- struct{}
}

// Run serves srv on its configured address until ctx is cancelled, then shuts
// it down gracefully. A clean shutdown returns nil.
func Run(ctx context.Context, srv *http.Server, opts Options) error {
	if srv == nil {
		return errors.New("http server is required")
	}
	if (opts.CertFile == "") != (opts.KeyFile == "") {
		return errors.New("tls requires both a certificate and a key file")
	}

	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}

	if opts.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			listener.Close()
			return fmt.Errorf("load tls keypair: %w", err)
		}
		tlsCfg := srv.TLSConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
		} else {
			tlsCfg = tlsCfg.Clone()
		}
		tlsCfg.Certificates = append([]tls.Certificate{cert}, tlsCfg.Certificates...)
		srv.TLSConfig = tlsCfg
		listener = tls.NewListener(listener, tlsCfg)
	}

	if opts.Ready != nil {
		close(opts.Ready)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
