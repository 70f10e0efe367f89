// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package control provides a JSON RPC 2 control socket for a playback
// session.
package control

import (
	"context"
	"log/slog"
	"net"

	"github.com/kortschak/jsonrpc2"

	"github.com/kortschak/still/internal/player"
	"github.com/kortschak/still/internal/slogext"
)

// Control methods. All methods other than Who return a Status.
const (
	Play    = "play"    // call → Status
	Pause   = "pause"   // call → Status
	Toggle  = "toggle"  // call → Status
	Restart = "restart" // call → Status
	State   = "state"   // call → Status
	Who     = "who"     // call → string (version)
)

// JSON RPC error codes.
const (
	ErrCodeNoSession = 1 // no session is bound
)

// ErrNoSession is returned when no playback session is bound.
var ErrNoSession = jsonrpc2.NewError(ErrCodeNoSession, "no session")

// Status is the reported state of a playback session.
type Status struct {
	Element   string `json:"element,omitempty"`
	State     string `json:"state"`
	Animating bool   `json:"animating"`
	// Showing is "source" when the element displays the
	// original resource and "snapshot" otherwise.
	Showing string `json:"showing"`
	Frames  int64  `json:"frames"`
}

// StatusOf returns the status of c bound to the named element that has
// rendered the given number of frames.
func StatusOf(c *player.Controller, element string, frames int64) Status {
	showing := "source"
	if c.Displayed() != c.Source() {
		showing = "snapshot"
	}
	return Status{
		Element:   element,
		State:     c.State().String(),
		Animating: c.IsAnimating(),
		Showing:   showing,
		Frames:    frames,
	}
}

// Session is a playback session.
type Session interface {
	Play(context.Context)
	Pause(context.Context)
	Toggle(context.Context)
	Restart(context.Context)
	Status() Status
}

// Server is a control socket server.
type Server struct {
	listener *netListener
	server   *jsonrpc2.Server
	session  func() Session
	version  string
	log      *slog.Logger
}

// NewServer returns a new control server listening on the provided network
// which may be either "unix" or "tcp". Requests are applied to the session
// returned by the session function at the time of the request. The version
// string is returned by the Who method.
func NewServer(ctx context.Context, network, addr string, session func() Session, version string, log *slog.Logger) (*Server, error) {
	ln, err := newNetListener(ctx, network, addr, jsonrpc2.NetListenOptions{})
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener: ln,
		session:  session,
		version:  version,
		log:      log.With(slog.String("component", "control")),
	}
	s.server = jsonrpc2.NewServer(ctx, ln, s)
	s.log.LogAttrs(ctx, slog.LevelInfo, "listening", slog.String("network", network), slog.Any("addr", slogext.Stringer{Stringer: ln.Addr()}))
	return s, nil
}

// Addr returns the listener address of the server.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Bind binds the server's handler to a connection.
func (s *Server) Bind(ctx context.Context, conn *jsonrpc2.Connection) jsonrpc2.ConnectionOptions {
	s.log.LogAttrs(ctx, slog.LevelDebug, "binding")
	return jsonrpc2.ConnectionOptions{
		Handler: s,
	}
}

// Handle implements the jsonrpc2.Handler interface.
func (s *Server) Handle(ctx context.Context, req *jsonrpc2.Request) (any, error) {
	s.log.LogAttrs(ctx, slog.LevelDebug, "handle", slog.Any("req", slogext.Request{Request: req}))
	if req.Method == Who {
		if !req.IsCall() {
			return nil, nil
		}
		return s.version, nil
	}

	sess := s.session()
	switch req.Method {
	case Play, Pause, Toggle, Restart, State:
	default:
		return nil, jsonrpc2.ErrMethodNotFound
	}
	if sess == nil {
		return nil, ErrNoSession
	}
	switch req.Method {
	case Play:
		sess.Play(ctx)
	case Pause:
		sess.Pause(ctx)
	case Toggle:
		sess.Toggle(ctx)
	case Restart:
		sess.Restart(ctx)
	}
	if !req.IsCall() {
		return nil, nil
	}
	return sess.Status(), nil
}

// Close shuts down the server and waits for it to finish.
func (s *Server) Close() error {
	s.log.LogAttrs(context.Background(), slog.LevelDebug, "close")
	s.server.Shutdown()
	return s.server.Wait()
}

// Client is a control socket client.
type Client struct {
	conn *jsonrpc2.Connection
}

// Dial returns a Client connected to the control server at addr.
func Dial(ctx context.Context, network, addr string) (*Client, error) {
	conn, err := jsonrpc2.Dial(ctx, jsonrpc2.NetDialer(network, addr, net.Dialer{}), jsonrpc2.ConnectionOptions{})
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Call calls the method on the server and returns the resulting status.
func (c *Client) Call(ctx context.Context, method string) (Status, error) {
	var status Status
	err := c.conn.Call(ctx, method, nil).Await(ctx, &status)
	return status, err
}

// Who returns the version of the server.
func (c *Client) Who(ctx context.Context) (string, error) {
	var version string
	err := c.conn.Call(ctx, Who, nil).Await(ctx, &version)
	return version, err
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
