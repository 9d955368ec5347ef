package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"huddle/internal/api"
	"huddle/internal/domain"
	"huddle/internal/feed"
	"huddle/internal/tally"
)

func (a *app) proposalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "proposals",
		Aliases: []string{"p"},
		Short:   "List, create and vote on proposals",
	}

	var groupID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List proposals with their votes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			proposals := feed.NewProposals(c, nil, a.session(), groupID, a.feedOptions())
			proposals.Refresh(cmd.Context())
			a.printProposals(proposals.List())
			return nil
		},
	}
	list.Flags().StringVar(&groupID, "group", "", "only this group")
	cmd.AddCommand(list)

	var in api.CreateProposalRequest
	var description, location, expires, eventDate string
	create := &cobra.Command{
		Use:   "create",
		Short: "Propose something to a group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			in.Description, in.Location = optional(description), optional(location)
			if in.ExpiresAt, err = parseTime(expires); err != nil {
				return fmt.Errorf("--expires: %w", err)
			}
			if in.EventDate, err = parseTime(eventDate); err != nil {
				return fmt.Errorf("--date: %w", err)
			}
			p, err := feed.NewProposals(c, nil, a.session(), in.GroupID, a.feedOptions()).Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created proposal %s\n", p.ID)
			return nil
		},
	}
	create.Flags().StringVar(&in.GroupID, "group", "", "group id")
	create.Flags().StringVar(&in.Title, "title", "", "title")
	create.Flags().StringVar(&description, "description", "", "description")
	create.Flags().StringVar(&location, "location", "", "where")
	create.Flags().StringVar(&expires, "expires", "", "voting deadline, RFC 3339")
	create.Flags().StringVar(&eventDate, "date", "", "proposed date, RFC 3339")
	_ = create.MarkFlagRequired("group")
	_ = create.MarkFlagRequired("title")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:       "vote PROPOSAL_ID yes|no|abstain",
		Short:     "Vote on a proposal; a new vote replaces your old one",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"yes", "no", "abstain"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			proposals := feed.NewProposals(c, nil, a.session(), "", a.feedOptions())
			proposals.Refresh(cmd.Context())
			if _, err := proposals.CastVote(cmd.Context(), args[0], domain.VoteType(args[1])); err != nil {
				return err
			}
			if v, ok := proposals.Get(args[0]); ok {
				a.printProposals([]feed.ProposalView{v})
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "close PROPOSAL_ID passed|failed|closed",
		Short: "End voting on a proposal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			p, err := c.SetProposalStatus(cmd.Context(), args[0], domain.ProposalStatus(args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Proposal %s is now %s\n", p.ID, p.Status)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show PROPOSAL_ID",
		Short: "Show a proposal with its votes and comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			p, err := c.GetProposal(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			comments, err := c.ListComments(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.printProposals([]feed.ProposalView{{Proposal: *p, Tally: tally.Votes(p.Votes, a.session().UserID)}})
			if d := deref(p.Description); d != "" {
				fmt.Fprintf(a.out, "\n%s\n", d)
			}
			if l := deref(p.Location); l != "" {
				fmt.Fprintf(a.out, "Where: %s\n", l)
			}
			if p.EventDate != nil {
				fmt.Fprintf(a.out, "When: %s\n", p.EventDate.Local().Format(time.RFC1123))
			}

			ids := make([]string, 0, len(comments))
			for _, cm := range comments {
				ids = append(ids, cm.UserID)
			}
			profiles := feed.NewProfiles(c, nil, a.feedOptions())
			profiles.Fetch(cmd.Context(), ids)
			fmt.Fprintf(a.out, "\n%d comments\n", len(comments))
			for _, cm := range comments {
				fmt.Fprintf(a.out, "%s  %s: %s\n", cm.CreatedAt.Local().Format("01-02 15:04"), profiles.Peek(cm.UserID).Text, cm.Content)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "comment PROPOSAL_ID TEXT...",
		Short: "Comment on a proposal",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			cm, err := c.AddComment(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Comment %s added\n", cm.ID)
			return nil
		},
	})
	return cmd
}

func (a *app) printProposals(list []feed.ProposalView) {
	w := a.table()
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tYES\tNO\tABSTAIN\tYOU")
	for _, p := range list {
		t := p.Tally
		own := string(t.Own)
		if own == "" {
			own = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d (%d%%)\t%d\t%d\t%s\n",
			p.ID, p.Title, p.Status, t.Yes, tally.Percent(t.Yes, t.Total), t.No, t.Abstain, own)
	}
	_ = w.Flush()
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
