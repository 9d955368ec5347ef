package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"huddle/internal/changefeed"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingInterval     = (pongWait * 9) / 10
	maxFrameSize     = 4096
	sendBuffer       = 256
	maxSubscriptions = 64
	accessTTL        = 30 * time.Second
)

// Subscriber is the part of the changefeed broker a connection needs.
type Subscriber interface {
	Subscribe(topic changefeed.Topic, fn func(changefeed.Change)) func()
}

// Access answers authorization questions for realtime subscribers.
type Access interface {
	IsGroupMember(ctx context.Context, groupID, userID string) (bool, error)
	CanReadChat(ctx context.Context, chatID, userID string) (bool, error)
}

type accessEntry struct {
	ok bool
	at time.Time
}

// Conn is one authenticated realtime connection and its subscriptions.
type Conn struct {
	ws     *websocket.Conn
	userID string
	broker Subscriber
	access Access
	log    *log.Logger

	send      chan ServerFrame
	stop      chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	subs       map[string]func()
	membership func()

	cacheMu sync.Mutex
	groups  map[string]accessEntry
}

func newConn(wsConn *websocket.Conn, userID string, broker Subscriber, access Access, l *log.Logger) *Conn {
	return &Conn{
		ws:     wsConn,
		userID: userID,
		broker: broker,
		access: access,
		log:    l,
		send:   make(chan ServerFrame, sendBuffer),
		stop:   make(chan struct{}),
		subs:   make(map[string]func()),
		groups: make(map[string]accessEntry),
	}
}

// Close cancels all subscriptions and closes the socket. Safe to call more
// than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.mu.Lock()
		for id, cancel := range c.subs {
			cancel()
			delete(c.subs, id)
		}
		if c.membership != nil {
			c.membership()
			c.membership = nil
		}
		c.mu.Unlock()
		c.ws.Close()
	})
}

func (c *Conn) queue(f ServerFrame) {
	select {
	case <-c.stop:
		return
	default:
	}
	select {
	case c.send <- f:
	default:
		c.log.Printf("ws: send buffer full for user %s, closing", c.userID)
		go c.Close()
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case f := <-c.send:
			b, err := json.Marshal(f)
			if err != nil {
				c.log.Printf("ws: encode frame: %v", err)
				continue
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.stop:
			return
		}
	}
}

func (c *Conn) readPump() {
	defer c.Close()

	c.ws.SetReadLimit(maxFrameSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			return
		}
		var f ClientFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.queue(ServerFrame{Type: FrameError, Error: "invalid frame"})
			continue
		}
		switch f.Type {
		case FrameSubscribe:
			c.subscribe(f)
		case FrameUnsubscribe:
			c.unsubscribe(f.ID)
		case FramePing:
			c.queue(ServerFrame{Type: FramePong, ID: f.ID})
		default:
			c.queue(ServerFrame{Type: FrameError, ID: f.ID, Error: "unknown frame type"})
		}
	}
}

func (c *Conn) subscribe(f ClientFrame) {
	if f.ID == "" {
		c.queue(ServerFrame{Type: FrameError, Error: "subscription id is required"})
		return
	}
	if !changefeed.KnownTable(f.Table) {
		c.queue(ServerFrame{Type: FrameError, ID: f.ID, Error: "unknown table"})
		return
	}
	if !c.allowFilter(f.Filter) {
		c.queue(ServerFrame{Type: FrameError, ID: f.ID, Error: "forbidden"})
		return
	}

	c.mu.Lock()
	select {
	case <-c.stop:
		c.mu.Unlock()
		return
	default:
	}
	if old, ok := c.subs[f.ID]; ok {
		old()
		delete(c.subs, f.ID)
	}
	if len(c.subs) >= maxSubscriptions {
		c.mu.Unlock()
		c.queue(ServerFrame{Type: FrameError, ID: f.ID, Error: "too many subscriptions"})
		return
	}
	id := f.ID
	c.subs[id] = c.broker.Subscribe(changefeed.Topic{Table: f.Table, Filter: f.Filter}, func(ch changefeed.Change) {
		if c.deliverable(ch) {
			c.queue(ServerFrame{Type: FrameChange, ID: id, Change: &ch})
		}
	})
	c.mu.Unlock()
	c.queue(ServerFrame{Type: FrameSubscribed, ID: id})
}

func (c *Conn) unsubscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.subs[id]; ok {
		cancel()
		delete(c.subs, id)
	}
}

func (c *Conn) allowFilter(f changefeed.Filter) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	switch f.Column {
	case "group_id":
		return c.isMember(ctx, f.Value)
	case "chat_id":
		ok, err := c.access.CanReadChat(ctx, f.Value, c.userID)
		if err != nil {
			c.log.Printf("ws: chat access for %s: %v", c.userID, err)
		}
		return ok
	}
	return true
}

// deliverable reports whether the connection's user may see ch.
func (c *Conn) deliverable(ch changefeed.Change) bool {
	if ch.Op == changefeed.Resync {
		return true
	}
	if ch.Table == changefeed.TableMembers && ch.Columns["user_id"] == c.userID {
		c.forget(ch.GroupID())
		return true
	}
	if len(ch.Audience) > 0 {
		for _, id := range ch.Audience {
			if id == c.userID {
				return true
			}
		}
		return false
	}
	if gid := ch.GroupID(); gid != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return c.isMember(ctx, gid)
	}
	return true
}

func (c *Conn) isMember(ctx context.Context, groupID string) bool {
	c.cacheMu.Lock()
	e, ok := c.groups[groupID]
	c.cacheMu.Unlock()
	if ok && time.Since(e.at) < accessTTL {
		return e.ok
	}

	member, err := c.access.IsGroupMember(ctx, groupID, c.userID)
	if err != nil {
		c.log.Printf("ws: membership check for %s: %v", c.userID, err)
		return false
	}
	c.cacheMu.Lock()
	c.groups[groupID] = accessEntry{ok: member, at: time.Now()}
	c.cacheMu.Unlock()
	return member
}

func (c *Conn) forget(groupID string) {
	c.cacheMu.Lock()
	delete(c.groups, groupID)
	c.cacheMu.Unlock()
}

// watchMembership drops cached group access whenever the user's own
// memberships change, whether or not the client subscribed to group_members.
func (c *Conn) watchMembership() {
	topic := changefeed.Topic{
		Table:  changefeed.TableMembers,
		Filter: changefeed.Filter{Column: "user_id", Value: c.userID},
	}
	cancel := c.broker.Subscribe(topic, func(ch changefeed.Change) {
		if ch.Op == changefeed.Resync {
			c.cacheMu.Lock()
			clear(c.groups)
			c.cacheMu.Unlock()
			return
		}
		c.forget(ch.GroupID())
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.stop:
		cancel()
		return
	default:
	}
	c.membership = cancel
}
