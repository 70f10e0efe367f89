// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package display

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// keyStates replays a sequence of key state reports and then io.EOF.
type keyStates struct {
	mu      sync.Mutex
	reports [][]bool
	errs    map[int]error
	calls   int
}

func (s *keyStates) KeyStates() ([]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.calls
	s.calls++
	if err, ok := s.errs[n]; ok {
		return nil, err
	}
	if len(s.reports) == 0 {
		return nil, io.EOF
	}
	r := s.reports[0]
	s.reports = s.reports[1:]
	return r, nil
}

func TestWatchKeys(t *testing.T) {
	src := &keyStates{
		reports: [][]bool{
			{false, false, false},
			{true, false, false},
			{true, false, false},
			{false, false, false},
			{false, true, false},
			{true, false, true},
			{false, false, false},
		},
		errs: map[int]error{
			3: errors.New("transient read failure"),
		},
	}

	var (
		mu     sync.Mutex
		events []string
	)
	record := func(name string) func(context.Context, time.Time) {
		return func(context.Context, time.Time) {
			mu.Lock()
			events = append(events, name)
			mu.Unlock()
		}
	}
	keys := map[int]*Key{
		0: {row: 0, col: 0},
		2: {row: 0, col: 2},
	}
	keys[0].OnPress(record("press 0"))
	keys[0].OnRelease(record("release 0"))
	keys[2].OnPress(record("press 2"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		watchKeys(context.Background(), src, func(idx int) *Key { return keys[idx] }, newLogger(t))
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for key watcher to stop at end of states")
	}

	want := []string{
		"press 0",
		"release 0",
		"press 0",
		"press 2",
		"release 0",
	}
	mu.Lock()
	defer mu.Unlock()
	if !cmp.Equal(want, events) {
		t.Errorf("unexpected key events:\n--- want:\n+++ got:\n%s", cmp.Diff(want, events))
	}
}

func TestWatchKeysCancel(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		watchKeys(ctx, blockingStates(block), func(int) *Key { return nil }, newLogger(t))
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for key watcher to stop after cancellation")
	}
}

type blockingStates chan struct{}

func (s blockingStates) KeyStates() ([]bool, error) {
	<-s
	return nil, io.EOF
}
