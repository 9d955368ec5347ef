// Package tally derives display aggregates from rows already fetched with
// their parent: vote counts, attendance counts and display names.
package tally

import (
	"math"
	"strings"

	"huddle/internal/domain"
)

// UnknownUser is shown when a profile has no usable name or does not exist.
const UnknownUser = "Unknown User"

// VoteTally summarises the votes of one proposal. Own is empty when the
// caller has not voted.
type VoteTally struct {
	Yes     int             `json:"yes"`
	No      int             `json:"no"`
	Abstain int             `json:"abstain"`
	Total   int             `json:"total"`
	Own     domain.VoteType `json:"own_vote,omitempty"`
}

// Votes counts votes by type and picks out userID's vote.
func Votes(votes []domain.Vote, userID string) VoteTally {
	var t VoteTally
	for _, v := range votes {
		switch v.VoteType {
		case domain.VoteYes:
			t.Yes++
		case domain.VoteNo:
			t.No++
		case domain.VoteAbstain:
			t.Abstain++
		default:
			continue
		}
		t.Total++
		if userID != "" && v.UserID == userID {
			t.Own = v.VoteType
		}
	}
	return t
}

// AttendanceSummary summarises the attendee rows of one event. Own is
// Pending when the caller has no row.
type AttendanceSummary struct {
	Attending    int                     `json:"attendee_count"`
	NotAttending int                     `json:"not_attending_count"`
	Own          domain.AttendanceStatus `json:"attendance_status"`
}

func Attendance(rows []domain.Attendance, userID string) AttendanceSummary {
	s := AttendanceSummary{Own: domain.Pending}
	for _, a := range rows {
		switch a.Status {
		case domain.Attending:
			s.Attending++
		case domain.NotAttending:
			s.NotAttending++
		}
		if userID != "" && a.UserID == userID {
			s.Own = a.Status
		}
	}
	return s
}

// DisplayName resolves the name to show for p: first and last name when
// both are set, then display name, then username.
func DisplayName(p *domain.Profile) string {
	if p == nil {
		return UnknownUser
	}
	first, last := trimmed(p.FirstName), trimmed(p.LastName)
	if first != "" && last != "" {
		return first + " " + last
	}
	if dn := trimmed(p.DisplayName); dn != "" {
		return dn
	}
	if un := trimmed(p.Username); un != "" {
		return un
	}
	return UnknownUser
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// Percent returns part/total as a rounded whole percentage, 0 when total
// is 0.
func Percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(total)))
}
