package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func queueCommand() *cobra.Command {
	var params map[string]string

	cmd := &cobra.Command{
		Use:   "queue <job>",
		Short: "Queue a job run on a running laminar server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(cmd); err != nil {
				return err
			}
			return runQueue(cmd, args[0], params)
		},
	}

	cmd.Flags().String("server", "http://localhost:8080", "laminar admin server base URL")
	cmd.Flags().StringToStringVar(&params, "param", nil, "job parameter KEY=VALUE, repeatable")
	_ = viper.BindPFlag("server", cmd.Flags().Lookup("server"))

	return cmd
}

func runQueue(cmd *cobra.Command, job string, params map[string]string) error {
	client := newAdminClient(viper.GetString("server"))

	body, err := json.Marshal(struct {
		Params map[string]string `json:"params,omitempty"`
	}{Params: params})
	if err != nil {
		return err
	}

	resp, err := client.post(fmt.Sprintf("/api/v1/jobs/%s/queue", job), bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result struct {
		Build int `json:"build"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s#%d\n", job, result.Build)
	return err
}
