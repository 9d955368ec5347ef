package feed

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"huddle/internal/changefeed"
	"huddle/internal/domain"
	"huddle/internal/tally"
)

// NameState tells a view how far a display name has resolved.
type NameState int

const (
	// NameUnloaded: no fetch has been requested for the user.
	NameUnloaded NameState = iota
	// NameLoading: a fetch is queued or in flight.
	NameLoading
	NameLoaded
	// NameMissing: the server has no profile for the user.
	NameMissing
)

func (s NameState) String() string {
	switch s {
	case NameLoading:
		return "loading"
	case NameLoaded:
		return "loaded"
	case NameMissing:
		return "missing"
	}
	return "unloaded"
}

// LoadingText is shown while a profile is being fetched.
const LoadingText = "Loading..."

// Name is a display name together with its resolution state. Text is
// only final for NameLoaded and NameMissing.
type Name struct {
	State NameState
	Text  string
}

// Profiles caches profiles by user id for the lifetime of a session.
// Lookups of unknown ids are queued and fetched in batches, at most once
// per id while the fetch is pending.
type Profiles struct {
	gw   ProfileGateway
	sub  Subscriber
	opts Options
	subs subscriptions

	flights singleflight.Group
	wg      sync.WaitGroup

	mu       sync.Mutex
	profiles map[string]*domain.Profile
	missing  map[string]bool
	queued   map[string]bool
	inFlight map[string]bool
}

func NewProfiles(gw ProfileGateway, sub Subscriber, opts Options) *Profiles {
	return &Profiles{
		gw:       gw,
		sub:      sub,
		opts:     opts,
		profiles: make(map[string]*domain.Profile),
		missing:  make(map[string]bool),
		queued:   make(map[string]bool),
		inFlight: make(map[string]bool),
	}
}

// Get returns a cached profile without fetching.
func (f *Profiles) Get(userID string) (*domain.Profile, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// Fetch loads the given ids that are neither cached nor pending, in one
// request.
func (f *Profiles) Fetch(ctx context.Context, ids []string) {
	f.mu.Lock()
	var want []string
	for _, id := range ids {
		if id == "" || f.known(id) || f.inFlight[id] {
			continue
		}
		f.inFlight[id] = true
		delete(f.queued, id)
		want = append(want, id)
	}
	f.mu.Unlock()
	if len(want) > 0 {
		f.load(ctx, want)
	}
}

func (f *Profiles) known(id string) bool {
	_, ok := f.profiles[id]
	return ok || f.missing[id]
}

// Peek resolves a name from the cache only.
func (f *Profiles) Peek(userID string) Name {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peek(userID)
}

func (f *Profiles) peek(userID string) Name {
	if p, ok := f.profiles[userID]; ok {
		return Name{State: NameLoaded, Text: tally.DisplayName(p)}
	}
	if f.missing[userID] {
		return Name{State: NameMissing, Text: tally.UnknownUser}
	}
	if f.queued[userID] || f.inFlight[userID] {
		return Name{State: NameLoading, Text: LoadingText}
	}
	return Name{State: NameUnloaded, Text: LoadingText}
}

// DisplayName resolves a user's name. An unknown id is queued for a
// background fetch and reported as NameLoading; repeated calls for the
// same pending id do not fetch again. Callers must not cache the result
// across state changes.
func (f *Profiles) DisplayName(ctx context.Context, userID string) Name {
	f.mu.Lock()
	n := f.peek(userID)
	if n.State != NameUnloaded || userID == "" {
		f.mu.Unlock()
		return n
	}
	f.queued[userID] = true
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for f.isQueued(userID) {
			f.flights.Do("queued", func() (any, error) {
				f.flushQueued(ctx)
				return nil, nil
			})
		}
	}()
	return Name{State: NameLoading, Text: LoadingText}
}

// Wait blocks until background fetches started by DisplayName finish.
func (f *Profiles) Wait() {
	f.wg.Wait()
}

func (f *Profiles) isQueued(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queued[id]
}

func (f *Profiles) flushQueued(ctx context.Context) {
	f.mu.Lock()
	ids := make([]string, 0, len(f.queued))
	for id := range f.queued {
		ids = append(ids, id)
		f.inFlight[id] = true
	}
	clear(f.queued)
	f.mu.Unlock()
	if len(ids) > 0 {
		f.load(ctx, ids)
	}
}

// load fetches ids already marked in flight. Ids the server does not
// return are remembered as missing. On error they become unloaded again.
func (f *Profiles) load(ctx context.Context, ids []string) {
	list, err := f.gw.GetProfiles(ctx, ids)

	f.mu.Lock()
	for _, id := range ids {
		delete(f.inFlight, id)
	}
	if err != nil {
		f.mu.Unlock()
		f.opts.logger().Printf("feed: fetch profiles: %v", err)
		return
	}
	for _, p := range list {
		if p != nil {
			f.profiles[p.UserID] = p
		}
	}
	for _, id := range ids {
		if _, ok := f.profiles[id]; !ok {
			f.missing[id] = true
		}
	}
	f.mu.Unlock()
	f.opts.notify()
}

// Start keeps cached profiles current until Stop or ctx is done.
func (f *Profiles) Start(ctx context.Context) {
	if f.subs.active() {
		return
	}
	f.subs.add(f.sub.Subscribe(changefeed.Topic{Table: changefeed.TableProfiles}, f.handle))
	f.subs.watch(ctx)
}

func (f *Profiles) Stop() {
	f.subs.stop()
}

func (f *Profiles) handle(c changefeed.Change) {
	if c.Op == changefeed.Resync {
		// Cached entries may be stale; drop them so the next lookup refetches.
		f.mu.Lock()
		clear(f.profiles)
		clear(f.missing)
		f.mu.Unlock()
		f.opts.notify()
		return
	}
	var p domain.Profile
	if err := c.Decode(&p); err != nil || p.UserID == "" {
		return
	}
	f.mu.Lock()
	_, cached := f.profiles[p.UserID]
	if cached || f.missing[p.UserID] {
		f.profiles[p.UserID] = &p
		delete(f.missing, p.UserID)
	}
	f.mu.Unlock()
	if cached {
		f.opts.notify()
	}
}
