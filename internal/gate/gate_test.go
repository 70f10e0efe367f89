// Copyright ©2026 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestGate(t *testing.T) {
	t.Run("open_before_wait", func(t *testing.T) {
		g := New()
		g.Open()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := g.Wait(ctx)
		if err != nil {
			t.Errorf("unexpected error waiting on open gate: %v", err)
		}
		if !g.IsOpen() {
			t.Error("expected open gate")
		}
	})
	t.Run("open_after_wait", func(t *testing.T) {
		g := New()
		done := make(chan error)
		go func() {
			done <- g.Wait(context.Background())
		}()
		select {
		case <-done:
			t.Fatal("unexpected return from wait on closed gate")
		case <-time.After(10 * time.Millisecond):
		}
		g.Open()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		case <-time.After(time.Second):
			t.Error("wait did not return after open")
		}
	})
	t.Run("cancelled", func(t *testing.T) {
		g := New()
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		defer cancel()
		err := g.Wait(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("unexpected error: got:%v want:%v", err, context.DeadlineExceeded)
		}
		if g.IsOpen() {
			t.Error("unexpected open gate")
		}
	})
	t.Run("open_is_idempotent", func(t *testing.T) {
		g := New()
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				g.Open()
			}()
		}
		wg.Wait()
		select {
		case <-g.Done():
		default:
			t.Error("expected closed done channel")
		}
	})
}
