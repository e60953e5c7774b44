// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// ListenerConfig configures a loopback callback listener.
type ListenerConfig struct {
	// Address is host:port to bind. It should be a loopback address;
	// the port may be 0 to pick a free one.
	Address string
	Handler HandlerConfig
	Logger  *slog.Logger
}

// Listener serves the callback routes on a local port until the first
// link is redeemed or rejected. It backs "crowdsync login --wait": the
// magic link points at the listener, and the terminal waits on Wait.
type Listener struct {
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger

	once     sync.Once
	attempts chan *Attempt
}

// Listen binds cfg.Address and starts serving.
func Listen(cfg ListenerConfig) (*Listener, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := cfg.Handler.Validate(); err != nil {
		return nil, err
	}

	tcpListener, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("callback: listening on %s: %w", cfg.Address, err)
	}

	l := &Listener{
		listener: tcpListener,
		logger:   logger,
		attempts: make(chan *Attempt, 1),
	}

	handlerConfig := cfg.Handler
	previous := handlerConfig.OnAttempt
	handlerConfig.OnAttempt = func(attempt *Attempt) {
		if previous != nil {
			previous(attempt)
		}
		l.once.Do(func() { l.attempts <- attempt })
	}
	if handlerConfig.Logger == nil {
		handlerConfig.Logger = logger
	}

	l.httpServer = &http.Server{
		Handler:           NewHandler(handlerConfig),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := l.httpServer.Serve(tcpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("callback listener error", "error", err)
		}
	}()
	logger.Info("callback listener started", "address", tcpListener.Addr().String())
	return l, nil
}

// Addr is the bound address.
func (l *Listener) Addr() string {
	return l.listener.Addr().String()
}

// Wait blocks until the first link is handled or ctx ends.
func (l *Listener) Wait(ctx context.Context) (*Attempt, error) {
	select {
	case attempt := <-l.attempts:
		return attempt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops the listener, letting in-flight responses finish.
func (l *Listener) Shutdown(ctx context.Context) error {
	return l.httpServer.Shutdown(ctx)
}
