// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xdg provides functions for locating and creating the
// configuration, state and runtime directories used by still.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// Config returns the path to the named file found first in the list of
// config directories obtained from ConfigHome, and ConfigDirs if local is
// false. If no file is found Config returns ENOENT.
func Config(name string, local bool) (string, error) {
	return find(name,
		key_XDG_CONFIG_HOME, def_XDG_CONFIG_HOME,
		key_XDG_CONFIG_DIRS, def_XDG_CONFIG_DIRS,
		_HOME, local)
}

// ConfigHome returns the path corresponding to XDG_CONFIG_HOME.
func ConfigHome() (string, bool) {
	return envOrDefault(key_XDG_CONFIG_HOME, def_XDG_CONFIG_HOME, _HOME)
}

// ConfigDirs returns the path list corresponding to XDG_CONFIG_DIRS.
func ConfigDirs() (string, bool) {
	return envOrDefault(key_XDG_CONFIG_DIRS, def_XDG_CONFIG_DIRS, "")
}

// StateHome returns the path corresponding to XDG_STATE_HOME.
func StateHome() (string, bool) {
	return envOrDefault(key_XDG_STATE_HOME, def_XDG_STATE_HOME, _HOME)
}

// RuntimeDir returns the path corresponding to XDG_RUNTIME_DIR.
func RuntimeDir() (string, bool) {
	return envOrDefault(key_XDG_RUNTIME_DIR, def_XDG_RUNTIME_DIR, _HOME)
}

// Ensure returns the path to the named directory within the base
// directory returned by home, creating it with the provided permissions
// if it does not exist. If home reports no base directory, Ensure
// returns ENOENT.
func Ensure(home func() (string, bool), name string, perm fs.FileMode) (string, error) {
	base, ok := home()
	if !ok {
		return "", syscall.ENOENT
	}
	path := filepath.Join(base, name)
	fi, err := os.Stat(path)
	switch {
	case err == nil:
		if !fi.IsDir() {
			return "", &fs.PathError{Op: "ensure", Path: path, Err: syscall.ENOTDIR}
		}
		return path, nil
	case errors.Is(err, fs.ErrNotExist):
		return path, os.MkdirAll(path, perm)
	default:
		return "", err
	}
}

// find returns the path to the named file found first in the list of paths
// in the keyed environment variable, or default, prepending home where
// necessary. If local is false, paths outside the user's home are included.
func find(name, keyLocal, defLocal, keyGlobal, defGlobal, home string, local bool) (string, error) {
	base, ok := envOrDefault(keyLocal, defLocal, home)
	if ok {
		path := filepath.Join(base, name)
		_, err := os.Stat(path)
		if err == nil {
			return path, nil
		}
	}
	if local {
		return "", syscall.ENOENT
	}
	list, ok := envOrDefault(keyGlobal, defGlobal, "")
	if !ok {
		return "", syscall.ENOENT
	}
	for _, base := range filepath.SplitList(list) {
		path := filepath.Join(base, name)
		_, err := os.Stat(path)
		if err == nil {
			return path, nil
		}
	}
	return "", syscall.ENOENT
}

// envOrDefault return the path or path list corresponding to the provided
// key and default. If home is not empty, the default is treated as an absolute
// path or path list and returned unaltered, otherwise the default is returned
// relative to home.
func envOrDefault(key, def, home string) (string, bool) {
	if key != "" {
		val, ok := os.LookupEnv(key)
		if ok {
			return val, true
		}
	}
	if def == "" {
		return "", false
	}
	if home == "" || filepath.IsAbs(def) {
		return def, true
	}
	base, ok := os.LookupEnv(home)
	if !ok {
		return "", false
	}
	return filepath.Join(base, def), true
}
