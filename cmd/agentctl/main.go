// Command agentctl is the operator CLI for an agentrund deployment: submit
// runs, tail their event streams, export their event history, and sanity-check the
// local environment, using a cobra-based subcommand layout.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	baseURL   string
	orgID     string
	userID    string
	projectID string
)

func main() {
	root := &cobra.Command{
		Use:   "agentctl",
		Short: "Operate and inspect an agentrund deployment",
	}
	root.PersistentFlags().StringVar(&baseURL, "server", envOr("AGENTCTL_SERVER", "http://localhost:8080"), "agentrund base URL")
	root.PersistentFlags().StringVar(&orgID, "org", envOr("AGENT_ORG_ID", "default"), "org id")
	root.PersistentFlags().StringVar(&userID, "user", envOr("AGENT_USER_ID", "default"), "user id")
	root.PersistentFlags().StringVar(&projectID, "project", envOr("AGENT_PROJECT_ID", ""), "project id")

	root.AddCommand(
		newInitCmd(),
		newRunCmd(),
		newTailCmd(),
		newExportCmd(),
		newSkillsCmd(),
		newDoctorCmd(),
		newDevCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "agentctl:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Scaffold a local data directory for agentrund",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "./data"
			if len(args) > 0 {
				dir = args[0]
			}
			for _, sub := range []string{"events", "checkpoints", "queue"} {
				if err := os.MkdirAll(dir+"/"+sub, 0o755); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", dir)
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	var agentID, sessionKey string
	cmd := &cobra.Command{
		Use:   "run [input]",
		Short: "Submit a new run and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, _ := json.Marshal(map[string]string{
				"agent_id":    agentID,
				"session_key": sessionKey,
				"input":       args[0],
			})
			resp, err := doRequest(http.MethodPost, "/api/runs", body)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			var out map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out["ID"])
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "agent_default", "agent id to run")
	cmd.Flags().StringVar(&sessionKey, "session", "", "session key (generated if omitted)")
	return cmd
}

func newTailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tail [run-id]",
		Short: "Stream a run's events as they are appended",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequest(http.MethodGet, baseURL+"/api/runs/"+args[0]+"/stream", nil)
			if err != nil {
				return err
			}
			setScopeHeaders(req)
			client := &http.Client{Timeout: 0}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 300 {
				data, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("agentctl: server returned %d: %s", resp.StatusCode, data)
			}
			scanner := bufio.NewScanner(resp.Body)
			for scanner.Scan() {
				fmt.Fprintln(cmd.OutOrStdout(), scanner.Text())
			}
			return scanner.Err()
		},
	}
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [run-id]",
		Short: "Dump the first page (up to 500 events) of a run's event history as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := doRequest(http.MethodGet, "/api/runs/"+args[0]+"/events?limit=500", nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
			return err
		},
	}
}

func newSkillsCmd() *cobra.Command {
	list := &cobra.Command{
		Use:   "list",
		Short: "List the skill catalog known to this deployment",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "no skill catalog configured")
			return nil
		},
	}
	parent := &cobra.Command{Use: "skills", Short: "Inspect the skill catalog"}
	parent.AddCommand(list)
	return parent
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check connectivity and required environment variables",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(baseURL + "/api/sessions/doctor-check/runs")
			switch {
			case err != nil:
				fmt.Fprintf(out, "server %s: unreachable (%v)\n", baseURL, err)
			case resp.StatusCode >= 500:
				fmt.Fprintf(out, "server %s: reachable but unhealthy (status %d)\n", baseURL, resp.StatusCode)
			default:
				fmt.Fprintf(out, "server %s: reachable\n", baseURL)
			}
			if resp != nil {
				resp.Body.Close()
			}
			for _, key := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY"} {
				if os.Getenv(key) == "" {
					fmt.Fprintf(out, "%s: not set\n", key)
				} else {
					fmt.Fprintf(out, "%s: set\n", key)
				}
			}
			return nil
		},
	}
}

func newDevCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dev",
		Short: "Run a single prompt against the server and tail it to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, _ := json.Marshal(map[string]string{"agent_id": "agent_default", "input": args[0]})
			resp, err := doRequest(http.MethodPost, "/api/runs", body)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			var created map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
				return err
			}
			runID, _ := created["ID"].(string)
			fmt.Fprintf(cmd.OutOrStdout(), "run: %s\n", runID)

			req, err := http.NewRequest(http.MethodGet, baseURL+"/api/runs/"+runID+"/stream", nil)
			if err != nil {
				return err
			}
			setScopeHeaders(req)
			client := &http.Client{Timeout: 0}
			streamResp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer streamResp.Body.Close()
			scanner := bufio.NewScanner(streamResp.Body)
			for scanner.Scan() {
				line := scanner.Text()
				fmt.Fprintln(cmd.OutOrStdout(), line)
				if bytes.HasPrefix([]byte(line), []byte("event: done")) {
					break
				}
			}
			return nil
		},
	}
}

func doRequest(method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	setScopeHeaders(req)
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("agentctl: server returned %d: %s", resp.StatusCode, data)
	}
	return resp, nil
}

func setScopeHeaders(req *http.Request) {
	req.Header.Set("x-org-id", orgID)
	req.Header.Set("x-user-id", userID)
	if projectID != "" {
		req.Header.Set("x-project-id", projectID)
	}
}
