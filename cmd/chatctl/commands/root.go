// Package commands holds the chatctl cobra command tree.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aifix/chat-auth/pkg/authclient"
)

const defaultServer = "http://localhost:8080"

// globals are the persistent flags shared by every subcommand.
type globals struct {
	server  string
	session string
	verbose bool
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:          "chatctl",
		Short:        "Command line client for the chat auth API",
		SilenceUsage: true,
	}

	server := os.Getenv("CHATCTL_SERVER")
	if server == "" {
		server = defaultServer
	}
	rootCmd.PersistentFlags().StringVarP(&g.server, "server", "s", server, "auth server base URL")
	rootCmd.PersistentFlags().StringVar(&g.session, "session", defaultSessionPath(), "session file path")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log client activity to stderr")

	rootCmd.AddCommand(
		newRegisterCommand(g),
		newLoginCommand(g),
		newLogoutCommand(g),
		newStatusCommand(g),
		newFetchCommand(g),
	)

	return rootCmd
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "chatctl", "session.json")
}

// client builds a facade whose durable store is the session file.
func (g *globals) client(cmd *cobra.Command) (*authclient.Client, error) {
	durable, err := authclient.NewFileStorage(g.session)
	if err != nil {
		return nil, err
	}

	log := zerolog.Nop()
	if g.verbose {
		log = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger()
	}

	c, err := authclient.New(g.server,
		authclient.WithPersistence(durable, authclient.NewMemoryStorage()),
		authclient.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func printUser(cmd *cobra.Command, prefix string, u *authclient.User) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s <%s> (id %s)\n", prefix, u.Name, u.Email, u.ID)
}
