package asn1stream

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gemalto/asn1stream/tlv"
	"github.com/gemalto/flume"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

var serverLog = flume.New("asn1stream_server")

// Server decodes the BER stream sent on each connection it accepts, and hands the
// events to Handler.
type Server struct {
	// Handler defaults to LogHandler.
	Handler EventHandler
	// Options configure the Reader of each connection.  OnEvent, OnError and
	// Logger are set by the Server.
	Options *Options
	// TLSConfig, if set, makes ListenAndServe accept TLS connections.
	TLSConfig *tls.Config

	mu         sync.Mutex
	listeners  map[*net.Listener]struct{}
	activeConn map[*conn]struct{}
	inShutdown int32 // accessed atomically (non-zero means we're in Shutdown)
}

// ErrServerClosed is returned by the Server's Serve and ListenAndServe methods
// after a call to Shutdown or Close.
var ErrServerClosed = errors.New("asn1stream: Server closed")

// ListenAndServe listens on the TCP address addr, and serves the connections.
func (srv *Server) ListenAndServe(addr string) error {
	if srv.shuttingDown() {
		return ErrServerClosed
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if srv.TLSConfig != nil {
		l = tls.NewListener(l, srv.TLSConfig)
	}
	return srv.Serve(l)
}

// Serve accepts incoming connections on the Listener l, creating a
// new service goroutine for each.
//
// Serve always returns a non-nil error and closes l.
// After Shutdown or Close, the returned error is ErrServerClosed.
func (srv *Server) Serve(l net.Listener) error {
	l = &onceCloseListener{Listener: l}
	defer l.Close()

	if !srv.trackListener(&l, true) {
		return ErrServerClosed
	}
	defer srv.trackListener(&l, false)

	serverLog.Info("serving", "addr", l.Addr().String())

	var tempDelay time.Duration // how long to sleep on accept failure
	ctx := context.Background()
	for {
		rw, e := l.Accept()
		if e != nil {
			if srv.shuttingDown() {
				return ErrServerClosed
			}
			if ne, ok := e.(net.Error); ok && ne.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				serverLog.Info("accept error, retrying", "err", e, "delay", tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return e
		}
		tempDelay = 0
		c := &conn{server: srv, rwc: rw}
		if !srv.trackConn(c, true) {
			_ = rw.Close()
			return ErrServerClosed
		}
		go c.serve(ctx)
	}
}

// Close immediately closes all active net.Listeners and connections.  For a
// graceful shutdown, use Shutdown.
//
// Close returns the errors returned from closing the listeners and connections.
func (srv *Server) Close() error {
	atomic.StoreInt32(&srv.inShutdown, 1)
	srv.mu.Lock()
	defer srv.mu.Unlock()
	err := srv.closeListenersLocked()
	for c := range srv.activeConn {
		err = multierr.Append(err, c.rwc.Close())
		delete(srv.activeConn, c)
	}
	return err
}

// shutdownPollInterval is how often we poll for quiescence
// during Server.Shutdown.
var shutdownPollInterval = 500 * time.Millisecond

// Shutdown gracefully shuts down the server without interrupting any active
// connections.  It closes the listeners, then waits for the connections to
// reach the end of their streams.  If ctx expires first, Shutdown returns the
// context's error, otherwise the error returned from closing the listeners.
//
// Once Shutdown has been called on a server, it may not be reused;
// future calls to methods such as Serve will return ErrServerClosed.
func (srv *Server) Shutdown(ctx context.Context) error {
	atomic.StoreInt32(&srv.inShutdown, 1)

	srv.mu.Lock()
	lnerr := srv.closeListenersLocked()
	srv.mu.Unlock()

	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()
	for {
		if srv.numConns() == 0 {
			return lnerr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (srv *Server) closeListenersLocked() error {
	var err error
	for ln := range srv.listeners {
		err = multierr.Append(err, (*ln).Close())
		delete(srv.listeners, ln)
	}
	return err
}

// trackListener adds or removes a net.Listener to the set of tracked
// listeners.
//
// We store a pointer to interface in the map set, in case the
// net.Listener is not comparable.
//
// It reports whether the server is still up (not Shutdown or Closed).
func (srv *Server) trackListener(ln *net.Listener, add bool) bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.listeners == nil {
		srv.listeners = make(map[*net.Listener]struct{})
	}
	if add {
		if srv.shuttingDown() {
			return false
		}
		srv.listeners[ln] = struct{}{}
	} else {
		delete(srv.listeners, ln)
	}
	return true
}

func (srv *Server) trackConn(c *conn, add bool) bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.activeConn == nil {
		srv.activeConn = make(map[*conn]struct{})
	}
	if add {
		if srv.shuttingDown() {
			return false
		}
		srv.activeConn[c] = struct{}{}
	} else {
		delete(srv.activeConn, c)
	}
	return true
}

func (srv *Server) numConns() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return len(srv.activeConn)
}

func (srv *Server) shuttingDown() bool {
	return atomic.LoadInt32(&srv.inShutdown) != 0
}

type conn struct {
	rwc    net.Conn
	info   ConnInfo
	server *Server
}

// Serve a new connection.
func (c *conn) serve(ctx context.Context) {
	c.info = ConnInfo{
		ID:         uuid.New().String(),
		RemoteAddr: c.rwc.RemoteAddr().String(),
		LocalAddr:  c.rwc.LocalAddr().String(),
	}

	// a logger for the connection, seeded with its correlation id
	logger := serverLog.With("conn", c.info.ID)
	ctx = flume.WithLogger(ctx, logger)
	ctx, cancelCtx := context.WithCancel(ctx)

	defer func() {
		if err := recover(); err != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			if e, ok := err.(error); ok {
				logger.Error("panic serving connection", "remote", c.info.RemoteAddr, "err", Details(e), "stack", string(buf))
			} else {
				logger.Error("panic serving connection", "remote", c.info.RemoteAddr, "err", err, "stack", string(buf))
			}
		}
		cancelCtx()
		_ = c.rwc.Close()
		c.server.trackConn(c, false)
	}()

	if tlsConn, ok := c.rwc.(*tls.Conn); ok {
		if err := tlsConn.Handshake(); err != nil {
			logger.Info("TLS handshake error", "remote", c.info.RemoteAddr, "err", err)
			return
		}
		c.info.TLS = new(tls.ConnectionState)
		*c.info.TLS = tlsConn.ConnectionState()
	}

	logger.Info("connection opened", "remote", c.info.RemoteAddr)

	h := c.server.Handler
	if h == nil {
		h = LogHandler
	}

	done := make(chan struct{})
	var doneOnce sync.Once
	finish := func() { doneOnce.Do(func() { close(done) }) }

	var opts Options
	if c.server.Options != nil {
		opts = *c.server.Options
	}
	opts.Logger = logger
	opts.OnEvent = func(ev *tlv.Event) {
		h.HandleEvent(ctx, &c.info, ev)
		if ev.Type == tlv.EventEOF {
			finish()
		}
	}
	opts.OnError = func(err error) {
		logger.Info("stream error", "err", err)
		finish()
	}

	r, err := NewReader(c.rwc, &opts)
	if err != nil {
		logger.Error("creating reader", "err", err)
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
	if err := r.Close(); err != nil {
		logger.Debug("closing reader", "err", err)
	}
	logger.Info("connection closed", "remote", c.info.RemoteAddr)
}

// onceCloseListener wraps a net.Listener, protecting it from
// multiple Close calls.
type onceCloseListener struct {
	net.Listener
	once     sync.Once
	closeErr error
}

func (oc *onceCloseListener) Close() error {
	oc.once.Do(oc.close)
	return oc.closeErr
}

func (oc *onceCloseListener) close() { oc.closeErr = oc.Listener.Close() }
