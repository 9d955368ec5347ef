package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"huddle/internal/domain"
	"huddle/internal/feed"
	"huddle/internal/objectstore"
)

func (a *app) chatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "Read and write chat messages",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List your chats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			chats := feed.NewChats(c, nil, a.session(), a.feedOptions())
			chats.Refresh(cmd.Context())

			w := a.table()
			fmt.Fprintln(w, "ID\tTYPE\tNAME\tLAST MESSAGE")
			for _, ch := range chats.List() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ch.ID, ch.Type, deref(ch.Name), preview(deref(ch.LastMessage)))
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "open GROUP_ID",
		Short: "Print the chat of a group, creating it if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			ch, err := feed.NewChats(c, nil, a.session(), a.feedOptions()).EnsureGroupChat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, ch.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "dm USER_ID",
		Short: "Print the direct chat with someone you share a group with",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			ch, err := c.OpenDirectChat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, ch.ID)
			return nil
		},
	})

	var pages int
	read := &cobra.Command{
		Use:   "read CHAT_ID",
		Short: "Print the latest messages of a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			messages := feed.NewMessages(c, nil, a.session(), args[0], feed.DefaultPageSize, a.feedOptions())
			messages.Load(cmd.Context())
			for i := 1; i < pages && messages.HasMore(); i++ {
				messages.LoadOlder(cmd.Context())
			}
			profiles := feed.NewProfiles(c, nil, a.feedOptions())
			a.printMessages(cmd, profiles, messages.Messages())
			return nil
		},
	}
	read.Flags().IntVar(&pages, "pages", 1, "number of pages to load")
	cmd.AddCommand(read)

	var file string
	send := &cobra.Command{
		Use:   "send CHAT_ID [TEXT...]",
		Short: "Send a message, optionally with an attached file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authed()
			if err != nil {
				return err
			}
			var fileURL *string
			msgType := domain.MessageText
			if file != "" {
				url, kind, err := a.uploadChatFile(cmd, file)
				if err != nil {
					return err
				}
				fileURL, msgType = &url, kind
			}
			messages := feed.NewMessages(c, nil, a.session(), args[0], feed.DefaultPageSize, a.feedOptions())
			m, err := messages.Send(cmd.Context(), strings.Join(args[1:], " "), msgType, fileURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Sent %s\n", m.ID)
			return nil
		},
	}
	send.Flags().StringVar(&file, "file", "", "attach a file")
	cmd.AddCommand(send)
	return cmd
}

func (a *app) uploadChatFile(cmd *cobra.Command, path string) (string, domain.MessageType, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()
	c := a.client()
	up, err := c.Upload(cmd.Context(), objectstore.BucketChatFiles, filepath.Base(path), f)
	if err != nil {
		return "", "", err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return up.URL, domain.MessageImage, nil
	}
	return up.URL, domain.MessageFile, nil
}

func (a *app) printMessages(cmd *cobra.Command, profiles *feed.Profiles, msgs []domain.Message) {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.UserID)
	}
	profiles.Fetch(cmd.Context(), ids)

	for _, m := range msgs {
		body := m.Content
		if m.FileURL != nil {
			body = strings.TrimSpace(body + " [" + *m.FileURL + "]")
		}
		fmt.Fprintf(a.out, "%s  %s: %s\n", m.CreatedAt.Local().Format("01-02 15:04"), profiles.Peek(m.UserID).Text, body)
	}
}

func preview(s string) string {
	const width = 40
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
