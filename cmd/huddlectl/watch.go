package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"huddle/internal/feed"
)

func (a *app) uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload BUCKET FILE",
		Short: "Upload a file and print its public URL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			up, err := c.Upload(cmd.Context(), args[0], filepath.Base(args[1]), f)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, up.URL)
			return nil
		},
	}
}

// watchCmd keeps proposals and events of a group live and reprints them
// whenever a change arrives.
func (a *app) watchCmd() *cobra.Command {
	var groupID string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow proposals and events as they change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rt := c.Realtime(a.logger)

			dirty := make(chan struct{}, 1)
			opts := a.feedOptions()
			opts.OnChange = func() {
				select {
				case dirty <- struct{}{}:
				default:
				}
			}
			proposals := feed.NewProposals(c, rt, a.session(), groupID, opts)
			events := feed.NewEvents(c, rt, a.session(), groupID, opts)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return rt.Run(ctx) })

			proposals.Refresh(ctx)
			events.Refresh(ctx)
			proposals.Start(ctx)
			events.Start(ctx)

			g.Go(func() error {
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-dirty:
						fmt.Fprintln(a.out, "\n== proposals")
						a.printProposals(proposals.List())
						fmt.Fprintln(a.out, "== events")
						a.printEvents(events.List())
					}
				}
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&groupID, "group", "", "only this group")
	return cmd
}
