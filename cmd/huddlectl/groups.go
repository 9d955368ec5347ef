package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"huddle/internal/feed"
)

func (a *app) groupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "List, create, join and leave groups",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List your groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			groups := feed.NewGroups(c, a.session(), a.feedOptions())
			groups.Refresh(cmd.Context())

			w := a.table()
			fmt.Fprintln(w, "ID\tNAME\tMEMBERS\tROLE\tINVITE")
			for _, g := range groups.List() {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", g.ID, g.Name, g.MemberCount, g.UserRole, g.InviteCode)
			}
			return w.Flush()
		},
	})

	var description string
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a group; you become its admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			g, err := feed.NewGroups(c, a.session(), a.feedOptions()).Create(cmd.Context(), args[0], optional(description), nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created %s (%s), invite code %s\n", g.Name, g.ID, g.InviteCode)
			return nil
		},
	}
	create.Flags().StringVar(&description, "description", "", "group description")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "join CODE",
		Short: "Join a group with its invite code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			g, err := feed.NewGroups(c, a.session(), a.feedOptions()).JoinByInviteCode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Joined %s (%s)\n", g.Name, g.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "leave GROUP_ID",
		Short: "Leave a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			if err := feed.NewGroups(c, a.session(), a.feedOptions()).Leave(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Left group")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "members GROUP_ID",
		Short: "List the members of a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			members, err := c.ListMembers(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(members))
			for _, m := range members {
				ids = append(ids, m.UserID)
			}
			profiles := feed.NewProfiles(c, nil, a.feedOptions())
			profiles.Fetch(cmd.Context(), ids)

			w := a.table()
			fmt.Fprintln(w, "USER ID\tNAME\tROLE")
			for _, m := range members {
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.UserID, profiles.Peek(m.UserID).Text, m.Role)
			}
			return w.Flush()
		},
	})
	return cmd
}
