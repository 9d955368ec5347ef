// Package changefeed fans out row-level change notifications to
// subscribers filtered by table and column value.
package changefeed

import (
	"encoding/json"
	"time"
)

// Op is the kind of row change.
type Op string

const (
	Insert Op = "INSERT"
	Update Op = "UPDATE"
	Delete Op = "DELETE"
	// Resync tells a subscriber that deliveries were dropped and its view
	// must be rebuilt from a fresh read.
	Resync Op = "RESYNC"
)

// Table names published by the services.
const (
	TableProfiles  = "profiles"
	TableGroups    = "groups"
	TableMembers   = "group_members"
	TableProposals = "proposals"
	TableVotes     = "votes"
	TableComments  = "proposal_comments"
	TableEvents    = "events"
	TableAttendees = "event_attendees"
	TableChats     = "chats"
	TableMessages  = "messages"
)

// KnownTable reports whether t is a table changes are published for.
func KnownTable(t string) bool {
	switch t {
	case TableProfiles, TableGroups, TableMembers, TableProposals, TableVotes,
		TableComments, TableEvents, TableAttendees, TableChats, TableMessages:
		return true
	}
	return false
}

// Change is one row-level notification. Columns carries the filterable
// values of the row (id, group_id, proposal_id, chat_id ...).
type Change struct {
	Table   string            `json:"table"`
	Op      Op                `json:"op"`
	Columns map[string]string `json:"columns,omitempty"`
	Row     json.RawMessage   `json:"row,omitempty"`
	At      time.Time         `json:"at"`

	// Audience restricts delivery to these user ids when non-empty.
	Audience []string `json:"audience,omitempty"`
}

// NewChange builds a change carrying row encoded as JSON.
func NewChange(table string, op Op, row any, columns map[string]string) Change {
	c := Change{Table: table, Op: op, Columns: columns, At: time.Now().UTC()}
	if row != nil {
		if b, err := json.Marshal(row); err == nil {
			c.Row = b
		}
	}
	return c
}

// Decode unmarshals the row payload into v.
func (c Change) Decode(v any) error {
	return json.Unmarshal(c.Row, v)
}

// GroupID is the group the changed row belongs to, if any.
func (c Change) GroupID() string {
	return c.Columns["group_id"]
}

// Filter selects rows whose Column equals Value. The zero Filter matches
// every row.
type Filter struct {
	Column string `json:"column,omitempty"`
	Value  string `json:"value,omitempty"`
}

func (f Filter) IsZero() bool {
	return f.Column == ""
}

// Topic is a subscription target.
type Topic struct {
	Table  string `json:"table"`
	Filter Filter `json:"filter"`
}

// Match reports whether c should be delivered to a subscriber of t.
func (t Topic) Match(c Change) bool {
	if t.Table != c.Table {
		return false
	}
	if c.Op == Resync || t.Filter.IsZero() {
		return true
	}
	return c.Columns[t.Filter.Column] == t.Filter.Value
}

// Publisher accepts changes for fan-out.
type Publisher interface {
	Publish(c Change)
}

// Discard drops every change.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Change) {}
