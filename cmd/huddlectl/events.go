package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"huddle/internal/domain"
	"huddle/internal/feed"
	"huddle/internal/tally"
)

func (a *app) eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List events and answer invitations",
	}

	var groupID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List upcoming events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			events := feed.NewEvents(c, nil, a.session(), groupID, a.feedOptions())
			events.Refresh(cmd.Context())
			a.printEvents(events.List())
			return nil
		},
	}
	list.Flags().StringVar(&groupID, "group", "", "only this group")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "from-proposal PROPOSAL_ID",
		Short: "Schedule the event of a passed proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			e, err := feed.NewEvents(c, nil, a.session(), "", a.feedOptions()).CreateFromProposal(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Event %s on %s\n", e.ID, e.StartDate.Local().Format(time.RFC1123))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "attend EVENT_ID attending|not_attending|pending",
		Short:     "Set your attendance; a new answer replaces the old one",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"attending", "not_attending", "pending"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			events := feed.NewEvents(c, nil, a.session(), "", a.feedOptions())
			if _, err := events.SetAttendance(cmd.Context(), args[0], domain.AttendanceStatus(args[1])); err != nil {
				return err
			}
			if e, ok := events.Get(args[0]); ok {
				a.printEvents([]feed.EventView{e})
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show EVENT_ID",
		Short: "Show an event and who is coming",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			e, err := c.GetEvent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.printEvents([]feed.EventView{{Event: *e, Summary: tally.Attendance(e.Attendees, a.session().UserID)}})
			if l := deref(e.Location); l != "" {
				fmt.Fprintf(a.out, "Where: %s\n", l)
			}

			ids := make([]string, 0, len(e.Attendees))
			for _, at := range e.Attendees {
				ids = append(ids, at.UserID)
			}
			profiles := feed.NewProfiles(c, nil, a.feedOptions())
			profiles.Fetch(cmd.Context(), ids)
			for _, at := range e.Attendees {
				fmt.Fprintf(a.out, "  %s: %s\n", profiles.Peek(at.UserID).Text, at.Status)
			}
			return nil
		},
	})
	return cmd
}

func (a *app) printEvents(list []feed.EventView) {
	w := a.table()
	fmt.Fprintln(w, "ID\tTITLE\tSTART\tGROUP\tGOING\tYOU")
	for _, e := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			e.ID, e.Title, e.StartDate.Local().Format("2006-01-02 15:04"), e.GroupName, e.Summary.Attending, e.Summary.Own)
	}
	_ = w.Flush()
}
