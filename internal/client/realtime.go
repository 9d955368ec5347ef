package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"huddle/internal/changefeed"
	"huddle/internal/domain"
	"huddle/internal/ws"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
	writeWait  = 10 * time.Second
)

// Realtime multiplexes changefeed subscriptions over one websocket. It
// satisfies the same Subscribe contract as changefeed.Broker, so feeds do
// not care whether changes arrive in-process or over the network.
//
// Subscriptions survive reconnects. After a reconnect every subscription
// receives a Resync change because deliveries may have been missed.
type Realtime struct {
	url    string
	client *Client
	dialer *websocket.Dialer
	logger *log.Logger

	mu     sync.Mutex
	subs   map[string]*subscription
	nextID uint64
	conn   *websocket.Conn

	writeMu sync.Mutex
}

type subscription struct {
	id    string
	topic changefeed.Topic
	fn    func(changefeed.Change)
}

// Realtime returns a realtime connection authenticated with the client's
// session. Nothing is dialed until Run.
func (c *Client) Realtime(logger *log.Logger) *Realtime {
	if logger == nil {
		logger = log.Default()
	}
	u := c.baseURL + "/realtime"
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return &Realtime{
		url:    u,
		client: c,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger,
		subs:   make(map[string]*subscription),
	}
}

// Subscribe registers fn for changes matching topic. fn runs on the read
// goroutine, one change at a time. The returned func cancels the
// subscription.
func (r *Realtime) Subscribe(topic changefeed.Topic, fn func(changefeed.Change)) func() {
	r.mu.Lock()
	r.nextID++
	s := &subscription{id: "s" + strconv.FormatUint(r.nextID, 10), topic: topic, fn: fn}
	r.subs[s.id] = s
	conn := r.conn
	r.mu.Unlock()

	if conn != nil {
		r.write(conn, subscribeFrame(s))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, s.id)
			conn := r.conn
			r.mu.Unlock()
			if conn != nil {
				r.write(conn, ws.ClientFrame{Type: ws.FrameUnsubscribe, ID: s.id})
			}
		})
	}
}

func subscribeFrame(s *subscription) ws.ClientFrame {
	return ws.ClientFrame{Type: ws.FrameSubscribe, ID: s.id, Table: s.topic.Table, Filter: s.topic.Filter}
}

// Run keeps the connection open until ctx is done, reconnecting with
// exponential backoff. It returns domain.ErrUnauthorized when the server
// rejects the session.
func (r *Realtime) Run(ctx context.Context) error {
	backoff := minBackoff
	for attempt := 0; ; attempt++ {
		started := time.Now()
		err := r.connect(ctx, attempt > 0)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, domain.ErrUnauthorized) {
			return err
		}
		if time.Since(started) > maxBackoff {
			backoff = minBackoff
		}
		r.logger.Printf("realtime: disconnected: %v (retrying in %s)", err, backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (r *Realtime) connect(ctx context.Context, resync bool) error {
	header := http.Header{}
	if tok := r.client.token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}
	conn, resp, err := r.dialer.DialContext(ctx, r.url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("realtime: %w", domain.ErrUnauthorized)
		}
		return err
	}
	defer conn.Close()

	r.mu.Lock()
	r.conn = conn
	subs := make([]*subscription, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		if r.conn == conn {
			r.conn = nil
		}
		r.mu.Unlock()
	}()

	for _, s := range subs {
		if err := r.write(conn, subscribeFrame(s)); err != nil {
			return err
		}
	}
	if resync {
		now := time.Now().UTC()
		for _, s := range subs {
			s.fn(changefeed.Change{Table: s.topic.Table, Op: changefeed.Resync, At: now})
		}
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var frame ws.ServerFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}
		switch frame.Type {
		case ws.FrameChange:
			if frame.Change == nil {
				continue
			}
			r.mu.Lock()
			s := r.subs[frame.ID]
			r.mu.Unlock()
			if s != nil {
				s.fn(*frame.Change)
			}
		case ws.FrameError:
			r.logger.Printf("realtime: subscription %s: %s", frame.ID, frame.Error)
		}
	}
}

func (r *Realtime) write(conn *websocket.Conn, frame ws.ClientFrame) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame); err != nil {
		r.logger.Printf("realtime: write %s: %v", frame.Type, err)
		return err
	}
	return nil
}
