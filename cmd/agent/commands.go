package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/petasbytes/recagent/internal/fsops"
	"github.com/petasbytes/recagent/internal/httpapi"
	"github.com/petasbytes/recagent/memory"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var exportCmd = &cobra.Command{
	Use:   "export THREAD_ID FILE",
	Short: "Write a thread transcript under the data write root",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if tr, err := memory.LoadTranscript(transcriptPath()); err == nil && tr != nil && tr.Thread.ID == args[0] {
			if err := memory.Restore(cmd.Context(), a.store, *tr); err != nil {
				return err
			}
		}
		tr, err := memory.Snapshot(cmd.Context(), a.store, args[0])
		if err != nil {
			return fmt.Errorf("thread %s: %w", args[0], err)
		}
		data, err := memory.MarshalTranscript(tr)
		if err != nil {
			return err
		}
		path, err := fsops.WriteFile(args[1], data)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token USER_ID",
	Short: "Issue a bearer token for the HTTP API",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.HTTP.JWTSecret == "" {
			return errors.New("http.jwt_secret is empty; the server does not check tokens")
		}
		tok, err := httpapi.IssueToken(cfg.HTTP.JWTSecret, args[0], tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
