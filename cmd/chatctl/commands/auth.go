package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aifix/chat-auth/pkg/authclient"
)

func passwordFrom(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv("CHATCTL_PASSWORD"); env != "" {
		return env, nil
	}
	return "", errors.New("password is required (--password or CHATCTL_PASSWORD)")
}

func newRegisterCommand(g *globals) *cobra.Command {
	var in authclient.RegisterInput

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := passwordFrom(in.Password)
			if err != nil {
				return err
			}
			in.Password = pw

			c, err := g.client(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			u, err := c.Register(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			printUser(cmd, "registered", u)
			return nil
		},
	}

	cmd.Flags().StringVarP(&in.Name, "name", "n", "", "display name")
	cmd.Flags().StringVarP(&in.Email, "email", "e", "", "email address")
	cmd.Flags().StringVarP(&in.Password, "password", "p", "", "password")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLoginCommand(g *globals) *cobra.Command {
	var (
		email    string
		password string
		remember bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := passwordFrom(password)
			if err != nil {
				return err
			}

			c, err := g.client(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			u, err := c.Login(cmd.Context(), email, pw, remember)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			printUser(cmd, "signed in as", u)
			fmt.Fprintf(cmd.OutOrStdout(), "session expires %s\n", c.ExpiresAt().Local().Format(time.RFC1123))
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "email address")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	cmd.Flags().BoolVarP(&remember, "remember", "r", false, "request a long-lived session")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Logout(cmd.Context(), false); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func newStatusCommand(g *globals) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the stored session against the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			ok, err := c.CheckStatus(cmd.Context(), force)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "not signed in")
				return nil
			}
			printUser(cmd, "signed in as", c.User())
			fmt.Fprintf(cmd.OutOrStdout(), "session expires %s\n", c.ExpiresAt().Local().Format(time.RFC1123))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "keep the cached session if the server is unreachable")
	return cmd
}
