// Copyright ©2026 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gate provides a one-shot readiness signal.
package gate

import (
	"context"
	"sync"
)

// Gate is a one-shot signal. Once opened it remains open, and waiters
// arriving after the gate has been opened do not block.
type Gate struct {
	once sync.Once
	done chan struct{}
}

// New returns a closed Gate.
func New() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Open opens the gate, releasing all current and future waiters. Open is
// idempotent.
func (g *Gate) Open() {
	g.once.Do(func() { close(g.done) })
}

// IsOpen returns whether the gate has been opened.
func (g *Gate) IsOpen() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when the gate is opened.
func (g *Gate) Done() <-chan struct{} {
	return g.done
}

// Wait blocks until the gate is opened or ctx is done. If the gate is
// already open, Wait returns nil without blocking, even if ctx has been
// cancelled.
func (g *Gate) Wait(ctx context.Context) error {
	if g.IsOpen() {
		return nil
	}
	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
