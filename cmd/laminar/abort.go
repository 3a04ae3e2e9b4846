package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func abortCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "abort <job> <build>",
		Short: "Abort an active run on a running laminar server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(cmd); err != nil {
				return err
			}
			return runAbort(cmd, args[0], args[1])
		},
	}

	cmd.Flags().String("server", "http://localhost:8080", "laminar admin server base URL")
	_ = viper.BindPFlag("server", cmd.Flags().Lookup("server"))

	return cmd
}

func runAbort(cmd *cobra.Command, job, build string) error {
	client := newAdminClient(viper.GetString("server"))

	resp, err := client.post(fmt.Sprintf("/api/v1/runs/%s/%s/abort", job, build), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "abort requested for %s#%s\n", job, build)
	return err
}
