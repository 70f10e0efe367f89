// Copyright ©2026 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slogext

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestURI(t *testing.T) {
	long := "data:image/png;base64," + strings.Repeat("A", 100)
	for _, test := range []struct {
		uri  string
		want string
	}{
		{uri: "data:text/plain,short", want: "data:text/plain,short"},
		{uri: "data:text/filename,gopher.gif", want: "data:text/filename,gopher.gif"},
		{uri: long, want: "data:image/png;base64," + strings.Repeat("A", maxURIData) + "...(100 bytes)"},
		{uri: "not a data uri", want: "not a data uri"},
	} {
		got := URI(test.uri).LogValue().String()
		if got != test.want {
			t.Errorf("unexpected log value: got:%q want:%q", got, test.want)
		}
	}
}

func TestJSONHandlerAddSource(t *testing.T) {
	var buf bytes.Buffer
	addSource := NewAtomicBool(false)
	log := slog.New(GoID{NewJSONHandler(&buf, &HandlerOptions{AddSource: addSource})})

	log.Info("without")
	addSource.Store(true)
	log.Info("with", slog.Any("uri", URI("data:text/plain,x")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("unexpected number of log lines: got:%d want:2\n%s", len(lines), &buf)
	}
	for i, l := range lines {
		var rec map[string]any
		err := json.Unmarshal([]byte(l), &rec)
		if err != nil {
			t.Fatalf("unexpected error unmarshaling log line %d: %v", i, err)
		}
		if _, ok := rec["goid"]; !ok {
			t.Errorf("missing goid in log line %d: %s", i, l)
		}
		_, ok := rec[slog.SourceKey]
		if ok != (i == 1) {
			t.Errorf("unexpected source presence in log line %d: got:%t want:%t", i, ok, i == 1)
		}
	}
}
