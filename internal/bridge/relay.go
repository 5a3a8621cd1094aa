// WSL Dev Bridge - Guest-Side Relay
// Re-exposes the cross-boundary debug endpoint on the guest's own
// loopback: a pure byte-forwarding TCP relay with no protocol awareness.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const relayDialTimeout = 5 * time.Second

// Relay listens on a local address and pipes every accepted connection to
// the target. It owns the listening port exclusively; Stop releases it so
// a replacement instance can bind immediately (SO_REUSEADDR is set for
// lingering TIME_WAIT sockets from a killed predecessor).
type Relay struct {
	listenAddr string
	targetAddr string

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	running  bool
}

// NewRelay creates a relay from listenAddr (host:port) to targetAddr.
func NewRelay(listenAddr, targetAddr string) *Relay {
	return &Relay{
		listenAddr: listenAddr,
		targetAddr: targetAddr,
		conns:      map[net.Conn]struct{}{},
	}
}

// Start binds the listener and serves until Stop or context cancellation.
// Non-blocking; accept and forwarding run in their own goroutines.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("relay already running on %s", r.listenAddr)
	}

	lc := net.ListenConfig{Control: reuseAddrControl}
	ln, err := lc.Listen(ctx, "tcp", r.listenAddr)
	if err != nil {
		return fmt.Errorf("relay listen %s: %w", r.listenAddr, err)
	}
	r.listener = ln
	r.running = true

	log.WithFields(log.Fields{
		"listen": r.listenAddr,
		"target": r.targetAddr,
	}).Info("Relay started")

	r.wg.Add(1)
	go r.acceptLoop(ctx, ln)

	context.AfterFunc(ctx, func() { r.Stop() })
	return nil
}

// Addr returns the bound listener address, useful when the listen port is 0.
func (r *Relay) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Stop closes the listener and all in-flight connections, then waits for
// the forwarding goroutines to drain. Safe to call more than once.
func (r *Relay) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	_ = r.listener.Close()
	for c := range r.conns {
		_ = c.Close()
	}
	r.mu.Unlock()

	r.wg.Wait()
	log.WithField("listen", r.listenAddr).Info("Relay stopped")
}

func (r *Relay) acceptLoop(ctx context.Context, ln net.Listener) {
	defer r.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.WithError(err).Debug("Relay accept failed")
			return
		}
		r.track(conn)
		r.wg.Add(1)
		go r.forward(ctx, conn)
	}
}

func (r *Relay) track(c net.Conn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
}

func (r *Relay) untrack(c net.Conn) {
	r.mu.Lock()
	delete(r.conns, c)
	r.mu.Unlock()
}

// forward pipes bytes both ways until either side closes.
func (r *Relay) forward(ctx context.Context, client net.Conn) {
	defer r.wg.Done()
	defer r.untrack(client)
	defer client.Close()

	dialer := net.Dialer{Timeout: relayDialTimeout}
	upstream, err := dialer.DialContext(ctx, "tcp", r.targetAddr)
	if err != nil {
		log.WithError(err).WithField("target", r.targetAddr).Debug("Relay dial failed")
		return
	}
	r.track(upstream)
	defer r.untrack(upstream)
	defer upstream.Close()

	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(upstream, client)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(client, upstream)
		done <- struct{}{}
	}()
	<-done
}
