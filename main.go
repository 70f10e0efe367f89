// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The still command binds a playback controller to an animated element and
// drives it from commands read from stdin and from a control socket.
//
// Commands read from stdin, one per line, are:
//
//	play           start playback from the first frame
//	pause          pause playback, freezing the current frame if configured
//	toggle         pause if playing, play if paused
//	restart        restart the animation if playing
//	state          print the session status as JSON
//	wait           wait for the initial transition to complete
//	sleep <dur>    sleep for the provided duration
//	forget         delete the element's recorded playback state
//	destroy        destroy the session, restoring the original resource
//	quit           exit
//
// When stdin is closed, the session is destroyed and still exits.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/kortschak/still/internal/config"
	"github.com/kortschak/still/internal/control"
	"github.com/kortschak/still/internal/display"
	"github.com/kortschak/still/internal/slogext"
	"github.com/kortschak/still/internal/state"
	"github.com/kortschak/still/internal/version"
	"github.com/kortschak/still/internal/xdg"
)

// headless is the size of the in-memory rendering surface used when no
// device is configured. It matches the key size of a Stream Deck.
var headless = image.Rect(0, 0, 72, 72)

func main() {
	os.Exit(Main())
}

func Main() int {
	cfgPath := flag.String("config", "", "path to the TOML configuration (default $XDG_CONFIG_HOME/still/still.toml)")
	logging := flag.String("log", "info", "logging level (debug, info, warn or error)")
	lines := flag.Bool("lines", false, "display source line details in logs")
	v := flag.Bool("version", false, "print version and exit")
	network := flag.String("network", "unix", "control socket network (unix or tcp)")
	listen := flag.String("listen", "", "control socket address (no control socket if empty)")
	statePath := flag.String("state", "", "path to the state database (default $XDG_STATE_HOME/still/state.sqlite3 when remembering state)")
	lockDir := flag.String("lockdir", "", "directory holding element locks (default $XDG_RUNTIME_DIR/still)")
	ctl := flag.String("ctl", "", "call the named method on the control socket at -listen, print the result and exit")
	dump := flag.Bool("dump", false, "print the playback states recorded in the -state database as JSON and exit")
	flag.Parse()
	if *v {
		err := version.Print()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	var level slog.LevelVar
	err := level.UnmarshalText([]byte(*logging))
	if err != nil {
		flag.Usage()
		return 2
	}
	addSource := slogext.NewAtomicBool(*lines)

	// log is the root logger.
	log := slog.New(slogext.GoID{Handler: slogext.NewJSONHandler(os.Stderr, &slogext.HandlerOptions{
		Level:     &level,
		AddSource: addSource,
	})})
	// mlog is the logger for main.
	mlog := log.With(slog.String("component", "still.main"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *ctl != "" {
		return call(ctx, *network, *listen, *ctl)
	}
	if *dump {
		return dumpState(*statePath, log)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		mlog.LogAttrs(ctx, slog.LevelInfo, "terminating")
		cancel()
	}()

	if *cfgPath == "" {
		*cfgPath, err = xdg.Config(filepath.Join("still", "still.toml"), false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "no configuration: %v\n", err)
			return 1
		}
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	name := cfg.Element.Name
	mlog.LogAttrs(ctx, slog.LevelInfo, "configuration", slog.String("path", *cfgPath), slog.String("element", name), slog.Any("source", slogext.URI(cfg.Element.Source)), slog.Any("sum", slogext.Stringer{Stringer: cfg.Sum}))

	if *lockDir == "" {
		*lockDir, err = xdg.Ensure(xdg.RuntimeDir, "still", 0o700)
		if err != nil {
			*lockDir, err = xdg.Ensure(func() (string, bool) { return os.TempDir(), true }, "still", 0o700)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
		}
	}
	lockFile := filepath.Join(*lockDir, name+".lock")
	fl := flock.New(lockFile)
	ok, err := fl.TryLock()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "element %s is already bound\n", name)
		return 1
	}
	defer func() {
		fl.Unlock()
		os.Remove(lockFile)
	}()

	var (
		sink display.Sink
		deck *display.Deck
		key  *display.Key
	)
	if cfg.Device != nil {
		deck, err = display.OpenDeck(cfg.Device.PID, cfg.Device.Serial, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open device: %v\n", err)
			return 1
		}
		defer deck.Close()
		key, err = deck.Key(cfg.Device.Row, cfg.Device.Col)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to get device key: %v\n", err)
			return 1
		}
		sink = key
	} else {
		mlog.LogAttrs(ctx, slog.LevelInfo, "headless", slog.Any("bounds", slogext.Stringer{Stringer: headless}))
		sink = display.NewRecorder(headless)
	}

	var store *state.DB
	if *statePath == "" && cfg.Player.Remember {
		dir, err := xdg.Ensure(xdg.StateHome, "still", 0o755)
		if err != nil {
			mlog.LogAttrs(ctx, slog.LevelWarn, "no state directory", slog.Any("error", err))
		} else {
			*statePath = filepath.Join(dir, "state.sqlite3")
		}
	}
	if *statePath != "" {
		store, err = state.Open(*statePath, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open state store: %v\n", err)
			return 1
		}
		defer store.Close()
	}

	el := display.New(ctx, name, sink, cfg.Element.DataDir, log)
	defer el.Close()
	err = el.Display(cfg.Element.Source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to display source: %v\n", err)
		return 1
	}

	sess := &session{el: el, store: store, log: log}
	err = sess.bind(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bind controller: %v\n", err)
		return 1
	}
	defer sess.destroy()

	if key != nil {
		press, release := sess.keyControl(cfg.Device.Control)
		key.OnPress(press)
		key.OnRelease(release)
		mlog.LogAttrs(ctx, slog.LevelInfo, "key control", slog.String("mode", cfg.Device.Control), slog.Int("row", cfg.Device.Row), slog.Int("col", cfg.Device.Col))
		go deck.Watch(ctx)
	}

	if *listen != "" {
		vers, err := version.String()
		if err != nil {
			vers = "(unknown)"
		}
		srv, err := control.NewServer(ctx, *network, *listen, sess.current, vers, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start control server: %v\n", err)
			return 1
		}
		defer srv.Close()
	}

	changes := make(chan config.Change)
	w, err := config.NewWatcher(ctx, *cfgPath, changes, -1, log)
	if err != nil {
		mlog.LogAttrs(ctx, slog.LevelWarn, "no configuration watcher", slog.Any("error", err))
	} else {
		defer w.Close()
		go w.Watch(ctx)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case ch := <-changes:
					sess.apply(ctx, ch)
				}
			}
		}()
	}

	cmds := make(chan string)
	go func() {
		defer close(cmds)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			select {
			case cmds <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			mlog.LogAttrs(ctx, slog.LevelError, "read commands", slog.Any("error", err))
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return 0
		case cmd, ok := <-cmds:
			if !ok {
				mlog.LogAttrs(ctx, slog.LevelInfo, "end of commands")
				return 0
			}
			if !sess.do(ctx, cmd) {
				return 0
			}
		}
	}
}

// call calls method on the control socket at addr and prints the result.
func call(ctx context.Context, network, addr, method string) int {
	if addr == "" {
		fmt.Fprintln(os.Stderr, "missing control socket address")
		return 2
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cli, err := control.Dial(ctx, network, addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to dial control socket: %v\n", err)
		return 1
	}
	defer cli.Close()
	var result any
	if method == control.Who {
		result, err = cli.Who(ctx)
	} else {
		result, err = cli.Call(ctx, method)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed %s call: %v\n", method, err)
		return 1
	}
	b, err := json.Marshal(result)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("%s\n", b)
	return 0
}

// do runs a single stdin command, returning false if still should exit.
func (s *session) do(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "":
		return true
	case "quit":
		return false
	case "sleep":
		d, err := time.ParseDuration(arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid sleep duration: %v\n", err)
			return true
		}
		select {
		case <-time.After(d):
		case <-ctx.Done():
		}
		return true
	case "destroy":
		s.destroy()
		return true
	case "forget":
		err := s.forget(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "forget: %v\n", err)
		}
		return true
	}

	sess := s.current()
	if sess == nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, errNoSession)
		return true
	}
	switch cmd {
	case "play":
		sess.Play(ctx)
	case "pause":
		sess.Pause(ctx)
	case "toggle":
		sess.Toggle(ctx)
	case "restart":
		sess.Restart(ctx)
	case "wait":
		s.wait(ctx)
	case "state":
		b, err := json.Marshal(sess.Status())
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return true
		}
		fmt.Printf("%s\n", b)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %q\n", cmd)
	}
	return true
}

// dumpState prints the records in the state database at path as JSON.
func dumpState(path string, log *slog.Logger) int {
	if path == "" {
		fmt.Fprintln(os.Stderr, "missing state database path")
		return 2
	}
	store, err := state.Open(path, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open state store: %v\n", err)
		return 1
	}
	defer store.Close()
	recs, err := store.Dump()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to dump state store: %v\n", err)
		return 1
	}
	enc := json.NewEncoder(os.Stdout)
	for _, r := range recs {
		err = enc.Encode(r)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	return 0
}

var (
	errNoSession = errors.New("no session")
	errNoStore   = errors.New("no state store")
)
