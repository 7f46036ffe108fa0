package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewRequestCmd creates the request command
func NewRequestCmd(opts *Options) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Send an authenticated request to the backend",
		Example: `  jobcard request GET /job-cards/
  jobcard request POST /job-cards/ --data '{"registration": "KA01 AB 1234"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts, strings.ToUpper(args[0]), args[1], data)
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")

	return cmd
}

func runRequest(cmd *cobra.Command, opts *Options, method, path, data string) error {
	var body any
	if data != "" {
		if !json.Valid([]byte(data)) {
			return fmt.Errorf("--data is not valid JSON")
		}
		body = json.RawMessage(data)
	}

	rt, err := opts.runtime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	stop := rt.WatchExpiry(cmd.Context(), cmd.ErrOrStderr())
	defer stop()

	resp, err := rt.Gateway.Request(cmd.Context(), method, path, body)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(resp.Body) == 0 {
		fmt.Fprintf(out, "%d\n", resp.StatusCode)
		return nil
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, resp.Body, "", "  "); err != nil {
		out.Write(resp.Body)
		fmt.Fprintln(out)
		return nil
	}
	fmt.Fprintln(out, pretty.String())
	return nil
}
