package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	var (
		serverURL string
		apiKey    string
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage sessions on a running mdtboard server",
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8384", "Server base URL")
	cmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key, if the server requires one")

	api := func() *apiClient { return &apiClient{base: serverURL, key: apiKey} }

	create := &cobra.Command{
		Use:   "create <owner>",
		Short: "Create a session for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				SessionID string `json:"session_id"`
			}
			err := api().do(http.MethodPost, "/v1/sessions",
				map[string]string{"owner_id": args[0]}, &out)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.SessionID)
			return nil
		},
	}

	destroy := &cobra.Command{
		Use:   "destroy <session-id>",
		Short: "Destroy a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return api().do(http.MethodDelete, "/v1/sessions/"+args[0], nil, nil)
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show session store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			if err := api().do(http.MethodGet, "/v1/sessions/stats", nil, &out); err != nil {
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, out, "", "  "); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			return nil
		},
	}

	cmd.AddCommand(create, destroy, stats)
	return cmd
}

// apiClient is the minimal client the CLI needs against the HTTP API.
type apiClient struct {
	base string
	key  string
}

func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}
