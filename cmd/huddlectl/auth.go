package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"huddle/internal/api"
	"huddle/internal/tally"
)

func (a *app) registerCmd() *cobra.Command {
	var email, password, name string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.client()
			resp, err := c.Register(cmd.Context(), api.RegisterRequest{
				Email:       email,
				Password:    password,
				DisplayName: optional(name),
			})
			if err != nil {
				return err
			}
			if err := a.saveSession(c.Session()); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Registered %s\n", resp.User.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password, at least 8 characters")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (a *app) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.client()
			resp, err := c.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if err := a.saveSession(c.Session()); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Logged in as %s\n", tally.DisplayName(resp.Profile))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out everywhere and forget the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			if err := c.Logout(cmd.Context()); err != nil {
				return err
			}
			if err := a.saveSession(c.Session()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			me, err := c.Me(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s <%s> id %s\n", tally.DisplayName(me.Profile), me.User.Email, me.User.ID)
			return nil
		},
	}
}
