package feed

import (
	"context"
	"sort"
	"sync"

	"huddle/internal/api"
	"huddle/internal/changefeed"
	"huddle/internal/domain"
	"huddle/internal/tally"
)

// EventView is an event with its attendance summary. Summary.Own is
// Pending when the caller has not answered.
type EventView struct {
	domain.Event
	Summary tally.AttendanceSummary `json:"summary"`
}

// Events tracks the events of one group, or of every group of the caller
// when groupID is empty. Ordered by start date.
type Events struct {
	gw      EventGateway
	sub     Subscriber
	session *domain.Session
	groupID string
	opts    Options
	seq     sequencer
	subs    subscriptions

	mu     sync.RWMutex
	events []*domain.Event
	ctx    context.Context
}

func NewEvents(gw EventGateway, sub Subscriber, session *domain.Session, groupID string, opts Options) *Events {
	return &Events{gw: gw, sub: sub, session: session, groupID: groupID, opts: opts, ctx: context.Background()}
}

func (f *Events) Refresh(ctx context.Context) {
	fetch := func(ctx context.Context) ([]*domain.Event, error) { return f.gw.ListEvents(ctx, f.groupID) }
	applied, err := refetch(ctx, &f.mu, &f.seq, fetch, func(list []*domain.Event) {
		f.events = list
		sortEvents(f.events)
	})
	if err != nil {
		f.opts.logger().Printf("feed: list events: %v", err)
		return
	}
	if applied {
		f.opts.notify()
	}
}

func sortEvents(list []*domain.Event) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].StartDate.Before(list[j].StartDate)
	})
}

func (f *Events) view(e *domain.Event) EventView {
	v := EventView{Event: *e}
	v.Attendees = append([]domain.Attendance(nil), e.Attendees...)
	v.Summary = tally.Attendance(v.Attendees, f.session.UserID)
	return v
}

func (f *Events) List() []EventView {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]EventView, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, f.view(e))
	}
	return out
}

func (f *Events) Get(id string) (EventView, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if e := f.find(id); e != nil {
		return f.view(e), true
	}
	return EventView{}, false
}

func (f *Events) find(id string) *domain.Event {
	for _, e := range f.events {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (f *Events) Create(ctx context.Context, in api.CreateEventRequest) (*domain.Event, error) {
	if err := requireSession(f.session); err != nil {
		return nil, err
	}
	if in.GroupID == "" {
		in.GroupID = f.groupID
	}
	e, err := f.gw.CreateEvent(ctx, in)
	if err != nil {
		return nil, err
	}
	f.Refresh(ctx)
	return e, nil
}

// CreateFromProposal returns the event of a passed proposal, creating it
// on first use. The event keeps the proposal's image.
func (f *Events) CreateFromProposal(ctx context.Context, proposalID string) (*domain.Event, error) {
	if err := requireSession(f.session); err != nil {
		return nil, err
	}
	e, err := f.gw.CreateEventFromProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	f.Refresh(ctx)
	return e, nil
}

// SetAttendance records the caller's answer, replacing an earlier one.
func (f *Events) SetAttendance(ctx context.Context, eventID string, status domain.AttendanceStatus) (*domain.Attendance, error) {
	if err := requireSession(f.session); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, domain.ErrInvalidInput
	}
	a, err := f.gw.SetAttendance(ctx, eventID, status)
	if err != nil {
		return nil, err
	}
	f.Refresh(ctx)
	return a, nil
}

// Start subscribes to event and attendance changes until Stop or ctx is
// done.
func (f *Events) Start(ctx context.Context) {
	if f.subs.active() {
		return
	}
	f.mu.Lock()
	f.ctx = ctx
	f.mu.Unlock()
	f.subs.add(f.sub.Subscribe(groupTopic(changefeed.TableEvents, f.groupID), f.handle))
	f.subs.add(f.sub.Subscribe(groupTopic(changefeed.TableAttendees, f.groupID), f.handle))
	f.subs.watch(ctx)
}

func (f *Events) Stop() {
	f.subs.stop()
}

func (f *Events) handle(c changefeed.Change) {
	f.mu.Lock()
	ok := c.Op != changefeed.Resync
	if ok {
		switch c.Table {
		case changefeed.TableEvents:
			ok = f.applyEvent(c)
		case changefeed.TableAttendees:
			ok = f.applyAttendance(c)
		}
	}
	if ok {
		f.seq.merged()
	}
	ctx := f.ctx
	f.mu.Unlock()

	if !ok {
		f.Refresh(ctx)
		return
	}
	f.opts.notify()
}

// applyEvent and applyAttendance run with f.mu held.
func (f *Events) applyEvent(c changefeed.Change) bool {
	if c.Op == changefeed.Delete {
		id := c.Columns["id"]
		for i, e := range f.events {
			if e.ID == id {
				f.events = append(f.events[:i], f.events[i+1:]...)
				break
			}
		}
		return true
	}

	var e domain.Event
	if err := c.Decode(&e); err != nil || e.ID == "" {
		return false
	}
	if existing := f.find(e.ID); existing != nil {
		if e.Attendees == nil {
			e.Attendees = existing.Attendees
		}
		*existing = e
	} else {
		f.events = append(f.events, &e)
	}
	sortEvents(f.events)
	return true
}

func (f *Events) applyAttendance(c changefeed.Change) bool {
	var a domain.Attendance
	if err := c.Decode(&a); err != nil || a.EventID == "" {
		return false
	}
	e := f.find(a.EventID)
	if e == nil {
		return false
	}
	for i := range e.Attendees {
		if e.Attendees[i].UserID == a.UserID {
			e.Attendees[i] = a
			return true
		}
	}
	e.Attendees = append(e.Attendees, a)
	return true
}
