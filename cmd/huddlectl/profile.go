package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"huddle/internal/api"
	"huddle/internal/tally"
)

func (a *app) profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Edit your profile",
	}

	var displayName, username, firstName, lastName, bio, avatarURL string
	set := &cobra.Command{
		Use:   "set",
		Short: "Change profile fields; flags left out keep their value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			changed := func(name, value string) *string {
				if !cmd.Flags().Changed(name) {
					return nil
				}
				return &value
			}
			in := api.UpdateProfileRequest{
				DisplayName: changed("display-name", displayName),
				Username:    changed("username", username),
				FirstName:   changed("first-name", firstName),
				LastName:    changed("last-name", lastName),
				Bio:         changed("bio", bio),
				AvatarURL:   changed("avatar-url", avatarURL),
			}
			p, err := c.UpdateProfile(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Profile saved, shown as %s\n", tally.DisplayName(p))
			return nil
		},
	}
	set.Flags().StringVar(&displayName, "display-name", "", "display name")
	set.Flags().StringVar(&username, "username", "", "username")
	set.Flags().StringVar(&firstName, "first-name", "", "first name")
	set.Flags().StringVar(&lastName, "last-name", "", "last name")
	set.Flags().StringVar(&bio, "bio", "", "short bio")
	set.Flags().StringVar(&avatarURL, "avatar-url", "", "avatar URL, see the upload command")
	cmd.AddCommand(set)
	return cmd
}
