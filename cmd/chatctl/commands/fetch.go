package commands

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

func newFetchCommand(g *globals) *cobra.Command {
	var (
		method string
		data   string
	)

	cmd := &cobra.Command{
		Use:   "fetch PATH",
		Short: "Send an authenticated request and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			var body io.Reader
			if data != "" {
				body = strings.NewReader(data)
			}
			req, err := http.NewRequestWithContext(cmd.Context(), strings.ToUpper(method), args[0], body)
			if err != nil {
				return fmt.Errorf("build request: %w", err)
			}
			if data != "" {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := c.AuthFetch(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Status)
			if _, err := io.Copy(out, resp.Body); err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	return cmd
}
