package tally

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"huddle/internal/domain"
)

func TestVotes(t *testing.T) {
	votes := []domain.Vote{
		{UserID: "a", VoteType: domain.VoteYes},
		{UserID: "b", VoteType: domain.VoteYes},
		{UserID: "c", VoteType: domain.VoteNo},
		{UserID: "d", VoteType: domain.VoteAbstain},
	}

	t.Run("Counts", func(t *testing.T) {
		got := Votes(votes, "c")
		assert.Equal(t, VoteTally{Yes: 2, No: 1, Abstain: 1, Total: 4, Own: domain.VoteNo}, got)
	})

	t.Run("NoOwnVote", func(t *testing.T) {
		got := Votes(votes, "z")
		assert.Empty(t, got.Own)
		assert.Equal(t, 4, got.Total)
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Equal(t, VoteTally{}, Votes(nil, "a"))
	})

	t.Run("IgnoresUnknownTypes", func(t *testing.T) {
		got := Votes([]domain.Vote{{UserID: "a", VoteType: "maybe"}}, "a")
		assert.Equal(t, VoteTally{}, got)
	})
}

func TestAttendance(t *testing.T) {
	rows := []domain.Attendance{
		{UserID: "a", Status: domain.Attending},
		{UserID: "b", Status: domain.Attending},
		{UserID: "c", Status: domain.NotAttending},
		{UserID: "d", Status: domain.Pending},
	}

	got := Attendance(rows, "c")
	assert.Equal(t, 2, got.Attending)
	assert.Equal(t, 1, got.NotAttending)
	assert.Equal(t, domain.NotAttending, got.Own)

	assert.Equal(t, domain.Pending, Attendance(rows, "z").Own)
	assert.Equal(t, domain.Pending, Attendance(nil, "a").Own)
}

func TestDisplayName(t *testing.T) {
	s := func(v string) *string { return &v }

	p := &domain.Profile{FirstName: s("Ana"), LastName: s("Ruiz"), DisplayName: s("AnaR"), Username: s("ana99")}
	assert.Equal(t, "Ana Ruiz", DisplayName(p))

	p.FirstName, p.LastName = nil, nil
	assert.Equal(t, "AnaR", DisplayName(p))

	p.DisplayName = nil
	assert.Equal(t, "ana99", DisplayName(p))

	p.Username = s("  ")
	assert.Equal(t, UnknownUser, DisplayName(p))

	assert.Equal(t, UnknownUser, DisplayName(nil))

	onlyFirst := &domain.Profile{FirstName: s("Ana"), Username: s("ana99")}
	assert.Equal(t, "ana99", DisplayName(onlyFirst))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(3, 0))
	assert.Equal(t, 50, Percent(2, 4))
	assert.Equal(t, 67, Percent(2, 3))
	assert.Equal(t, 100, Percent(4, 4))
}
