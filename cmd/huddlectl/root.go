package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"huddle/internal/client"
	"huddle/internal/domain"
	"huddle/internal/feed"
)

const defaultServer = "http://localhost:8000"

// app carries the configuration shared by every command.
type app struct {
	v       *viper.Viper
	cfgFile string
	out     io.Writer
	logger  *log.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out, logger: log.New(errOut, "huddlectl: ", 0)}

	root := &cobra.Command{
		Use:          "huddlectl",
		Short:        "Plan with your groups from the terminal",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default $HOME/.huddle.yaml)")
	root.PersistentFlags().String("server", defaultServer, "server base URL")
	_ = a.v.BindPFlag("server", root.PersistentFlags().Lookup("server"))

	root.AddCommand(
		a.registerCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.profileCmd(),
		a.groupsCmd(),
		a.proposalsCmd(),
		a.eventsCmd(),
		a.chatsCmd(),
		a.uploadCmd(),
		a.watchCmd(),
	)
	return root
}

func (a *app) loadConfig() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		a.v.AddConfigPath(home)
		a.v.SetConfigName(".huddle")
		a.v.SetConfigType("yaml")
	}
	a.v.SetEnvPrefix("HUDDLE")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func (a *app) session() *domain.Session {
	return &domain.Session{
		UserID:      a.v.GetString("user_id"),
		AccessToken: a.v.GetString("access_token"),
	}
}

func (a *app) client() *client.Client {
	return client.New(a.v.GetString("server"), client.WithSession(*a.session()))
}

// authed returns a client and fails early when no session is stored.
func (a *app) authed() (*client.Client, error) {
	if !a.session().Valid() {
		return nil, fmt.Errorf("not logged in, run huddlectl login: %w", domain.ErrUnauthorized)
	}
	return a.client(), nil
}

func (a *app) saveSession(s *domain.Session) error {
	a.v.Set("user_id", s.UserID)
	a.v.Set("access_token", s.AccessToken)

	path := a.v.ConfigFileUsed()
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		path = filepath.Join(home, ".huddle.yaml")
	}
	if err := a.v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return os.Chmod(path, 0o600)
}

func (a *app) feedOptions() feed.Options {
	return feed.Options{Logger: a.logger}
}

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
