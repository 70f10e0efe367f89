// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package version reports the build version.
package version

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// String returns the module version and VCS revision of the running
// binary.
func String() (string, error) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "", errors.New("no build info")
	}
	return format(bi), nil
}

func format(bi *debug.BuildInfo) string {
	var revision, modified string
	for _, bs := range bi.Settings {
		switch bs.Key {
		case "vcs.revision":
			revision = bs.Value
		case "vcs.modified":
			modified = bs.Value
		}
	}
	if revision == "" {
		return bi.Main.Version
	}
	switch modified {
	case "true":
		return strings.Join([]string{bi.Main.Version, revision, "(modified)"}, " ")
	case "false":
		return strings.Join([]string{bi.Main.Version, revision}, " ")
	default:
		// This should never happen.
		return strings.Join([]string{bi.Main.Version, revision, modified}, " ")
	}
}

// Print prints the build version.
func Print() error {
	v, err := String()
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}
