package clusterpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	// CallTimeout caps a single request round trip.
	CallTimeout = 30 * time.Second
	// PingInterval is the keepalive cadence.
	PingInterval = 30 * time.Second
	// DeadInterval closes the link when nothing arrives for this long.
	DeadInterval = 90 * time.Second
)

var (
	ErrClosed      = errors.New("clusterpc: connection closed")
	ErrCallTimeout = errors.New("clusterpc: call timed out")
)

// RequestFunc serves one inbound request; the returned value is marshaled as
// the response body.
type RequestFunc func(ctx context.Context, body msgpack.RawMessage) (any, error)

// NotifyFunc consumes one inbound notification.
type NotifyFunc func(body msgpack.RawMessage)

// Conn is one end of the hub/edge link. Both sides can issue calls and
// notifications; handlers are registered before Serve starts.
type Conn struct {
	nc  net.Conn
	log *slog.Logger

	writeMu sync.Mutex

	nextID  atomic.Uint64
	pending sync.Map // uint64 -> chan *Envelope

	handlersMu sync.RWMutex
	requests   map[string]RequestFunc
	notifies   map[string]NotifyFunc

	lastRecv atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
}

// New wraps an established connection. The caller still has to run Serve.
func New(nc net.Conn, log *slog.Logger) *Conn {
	if log == nil {
		log = slog.Default()
	}
	c := &Conn{
		nc:       nc,
		log:      log.With("component", "clusterpc", "remote", nc.RemoteAddr().String()),
		requests: make(map[string]RequestFunc),
		notifies: make(map[string]NotifyFunc),
		closed:   make(chan struct{}),
	}
	c.lastRecv.Store(time.Now().UnixNano())
	return c
}

// Handle registers a request handler for method.
func (c *Conn) Handle(method string, fn RequestFunc) {
	c.handlersMu.Lock()
	c.requests[method] = fn
	c.handlersMu.Unlock()
}

// OnNotify registers a notification handler for method.
func (c *Conn) OnNotify(method string, fn NotifyFunc) {
	c.handlersMu.Lock()
	c.notifies[method] = fn
	c.handlersMu.Unlock()
}

// Call issues a request and decodes the response body into result, which may
// be nil when the caller only cares about success.
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	body, err := msgpack.Marshal(params)
	if err != nil {
		return fmt.Errorf("clusterpc: marshal %s params: %w", method, err)
	}

	id := c.nextID.Add(1)
	ch := make(chan *Envelope, 1)
	c.pending.Store(id, ch)
	defer c.pending.Delete(id)

	if err := c.send(&Envelope{Kind: KindRequest, ID: id, Method: method, Body: body}); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	select {
	case env := <-ch:
		if env.Error != "" {
			return fmt.Errorf("clusterpc: %s: %s", method, env.Error)
		}
		if result != nil {
			if err := msgpack.Unmarshal(env.Body, result); err != nil {
				return fmt.Errorf("clusterpc: decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrCallTimeout, method)
		}
		return ctx.Err()
	case <-c.closed:
		return ErrClosed
	}
}

// Notify sends a fire-and-forget notification.
func (c *Conn) Notify(method string, params any) error {
	body, err := msgpack.Marshal(params)
	if err != nil {
		return fmt.Errorf("clusterpc: marshal %s params: %w", method, err)
	}
	return c.send(&Envelope{Kind: KindNotification, Method: method, Body: body})
}

// Serve runs the read loop plus the keepalive timer until the connection
// drops or ctx is canceled.
func (c *Conn) Serve(ctx context.Context) error {
	go c.keepalive(ctx)

	for {
		env, err := readEnvelope(c.nc)
		if err != nil {
			c.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		c.lastRecv.Store(time.Now().UnixNano())

		switch env.Kind {
		case KindRequest:
			go c.serveRequest(ctx, env)
		case KindResponse:
			if ch, ok := c.pending.Load(env.ID); ok {
				ch.(chan *Envelope) <- env
			}
		case KindNotification:
			c.handlersMu.RLock()
			fn := c.notifies[env.Method]
			c.handlersMu.RUnlock()
			if fn != nil {
				fn(env.Body)
			} else {
				c.log.Debug("unhandled notification", "method", env.Method)
			}
		case KindPing:
			if err := c.send(&Envelope{Kind: KindPong}); err != nil {
				c.Close()
				return err
			}
		case KindPong:
			// lastRecv already updated.
		default:
			c.log.Warn("unknown envelope kind", "kind", env.Kind)
		}
	}
}

func (c *Conn) serveRequest(ctx context.Context, env *Envelope) {
	c.handlersMu.RLock()
	fn := c.requests[env.Method]
	c.handlersMu.RUnlock()

	resp := &Envelope{Kind: KindResponse, ID: env.ID}
	if fn == nil {
		resp.Error = fmt.Sprintf("no such method %q", env.Method)
	} else {
		result, err := fn(ctx, env.Body)
		if err != nil {
			resp.Error = err.Error()
		} else if result != nil {
			body, err := msgpack.Marshal(result)
			if err != nil {
				resp.Error = fmt.Sprintf("marshal result: %v", err)
			} else {
				resp.Body = body
			}
		}
	}
	if err := c.send(resp); err != nil {
		c.log.Warn("response write failed", "method", env.Method, "error", err)
	}
}

func (c *Conn) keepalive(ctx context.Context) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			idle := time.Since(time.Unix(0, c.lastRecv.Load()))
			if idle > DeadInterval {
				c.log.Warn("peer silent, closing link", "idle", idle)
				c.Close()
				return
			}
			if err := c.send(&Envelope{Kind: KindPing}); err != nil {
				c.Close()
				return
			}
		case <-ctx.Done():
			c.Close()
			return
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) send(env *Envelope) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeEnvelope(c.nc, env)
}

// Close tears the link down; pending calls fail with ErrClosed.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.nc.Close()
	})
	return nil
}

// Done is closed when the connection is gone.
func (c *Conn) Done() <-chan struct{} { return c.closed }

// RemoteAddr exposes the peer address for logs.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }
