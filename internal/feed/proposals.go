package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"huddle/internal/api"
	"huddle/internal/changefeed"
	"huddle/internal/domain"
	"huddle/internal/tally"
)

// ProposalView is a proposal with its vote tally from the caller's point
// of view.
type ProposalView struct {
	domain.Proposal
	Tally tally.VoteTally `json:"tally"`
}

// CanVote reports whether voting controls should be enabled.
func (v ProposalView) CanVote(now time.Time) bool {
	return v.AcceptsVotes(now)
}

// Proposals tracks the proposals of one group, or of every group of the
// caller when groupID is empty. Newest first.
type Proposals struct {
	gw      ProposalGateway
	sub     Subscriber
	session *domain.Session
	groupID string
	opts    Options
	seq     sequencer
	subs    subscriptions

	mu        sync.RWMutex
	proposals []*domain.Proposal
	ctx       context.Context
}

func NewProposals(gw ProposalGateway, sub Subscriber, session *domain.Session, groupID string, opts Options) *Proposals {
	return &Proposals{gw: gw, sub: sub, session: session, groupID: groupID, opts: opts, ctx: context.Background()}
}

// Refresh refetches every proposal. On error the previous list is kept.
func (f *Proposals) Refresh(ctx context.Context) {
	fetch := func(ctx context.Context) ([]*domain.Proposal, error) { return f.gw.ListProposals(ctx, f.groupID) }
	applied, err := refetch(ctx, &f.mu, &f.seq, fetch, func(list []*domain.Proposal) {
		f.proposals = list
		sortProposals(f.proposals)
	})
	if err != nil {
		f.opts.logger().Printf("feed: list proposals: %v", err)
		return
	}
	if applied {
		f.opts.notify()
	}
}

func sortProposals(list []*domain.Proposal) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func (f *Proposals) view(p *domain.Proposal) ProposalView {
	v := ProposalView{Proposal: *p}
	v.Votes = append([]domain.Vote(nil), p.Votes...)
	v.Tally = tally.Votes(v.Votes, f.session.UserID)
	return v
}

func (f *Proposals) List() []ProposalView {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]ProposalView, 0, len(f.proposals))
	for _, p := range f.proposals {
		out = append(out, f.view(p))
	}
	return out
}

func (f *Proposals) Get(id string) (ProposalView, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if p := f.find(id); p != nil {
		return f.view(p), true
	}
	return ProposalView{}, false
}

func (f *Proposals) find(id string) *domain.Proposal {
	for _, p := range f.proposals {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (f *Proposals) Create(ctx context.Context, in api.CreateProposalRequest) (*domain.Proposal, error) {
	if err := requireSession(f.session); err != nil {
		return nil, err
	}
	if in.GroupID == "" {
		in.GroupID = f.groupID
	}
	p, err := f.gw.CreateProposal(ctx, in)
	if err != nil {
		return nil, err
	}
	f.Refresh(ctx)
	return p, nil
}

// CastVote records the caller's vote, replacing an earlier one. A
// proposal known to be closed is rejected without a request.
func (f *Proposals) CastVote(ctx context.Context, proposalID string, voteType domain.VoteType) (*domain.Vote, error) {
	if err := requireSession(f.session); err != nil {
		return nil, err
	}
	if !voteType.Valid() {
		return nil, domain.ErrInvalidInput
	}
	f.mu.RLock()
	p := f.find(proposalID)
	closed := p != nil && !p.AcceptsVotes(time.Now())
	f.mu.RUnlock()
	if closed {
		return nil, domain.ErrProposalClosed
	}

	v, err := f.gw.CastVote(ctx, proposalID, voteType)
	if err != nil {
		return nil, err
	}
	f.Refresh(ctx)
	return v, nil
}

// Start subscribes to proposal and vote changes until Stop or ctx is
// done. Handlers refetch with ctx.
func (f *Proposals) Start(ctx context.Context) {
	if f.subs.active() {
		return
	}
	f.mu.Lock()
	f.ctx = ctx
	f.mu.Unlock()
	f.subs.add(f.sub.Subscribe(groupTopic(changefeed.TableProposals, f.groupID), f.handle))
	f.subs.add(f.sub.Subscribe(groupTopic(changefeed.TableVotes, f.groupID), f.handle))
	f.subs.watch(ctx)
}

func (f *Proposals) Stop() {
	f.subs.stop()
}

func (f *Proposals) handle(c changefeed.Change) {
	f.mu.Lock()
	ok := c.Op != changefeed.Resync
	if ok {
		switch c.Table {
		case changefeed.TableProposals:
			ok = f.applyProposal(c)
		case changefeed.TableVotes:
			ok = f.applyVote(c)
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

// applyProposal and applyVote run with f.mu held.
func (f *Proposals) applyProposal(c changefeed.Change) bool {
	if c.Op == changefeed.Delete {
		id := c.Columns["id"]
		for i, p := range f.proposals {
			if p.ID == id {
				f.proposals = append(f.proposals[:i], f.proposals[i+1:]...)
				break
			}
		}
		return true
	}

	var p domain.Proposal
	if err := c.Decode(&p); err != nil || p.ID == "" {
		return false
	}
	if existing := f.find(p.ID); existing != nil {
		if p.Votes == nil {
			p.Votes = existing.Votes
		}
		*existing = p
		return true
	}
	if c.Op == changefeed.Update {
		return false
	}
	f.proposals = append(f.proposals, &p)
	sortProposals(f.proposals)
	return true
}

func (f *Proposals) applyVote(c changefeed.Change) bool {
	var v domain.Vote
	if err := c.Decode(&v); err != nil || v.ProposalID == "" {
		return false
	}
	p := f.find(v.ProposalID)
	if p == nil {
		return false
	}
	for i := range p.Votes {
		if p.Votes[i].UserID == v.UserID {
			if c.Op == changefeed.Delete {
				p.Votes = append(p.Votes[:i], p.Votes[i+1:]...)
			} else {
				p.Votes[i] = v
			}
			return true
		}
	}
	if c.Op != changefeed.Delete {
		p.Votes = append(p.Votes, v)
	}
	return true
}
