package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/xela07ax/gridrules/internal/domain"
	"github.com/xela07ax/gridrules/internal/engine"
)

func newRemoteCmd() *cobra.Command {
	var (
		addr       string
		envID      string
		actionPath string
		token      string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Check an action against a running gridrules over gRPC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var action domain.Action
			if err := readInput(actionPath, &action); err != nil {
				return err
			}

			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if token != "" {
				ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
			}

			out, err := engine.NewLegalityClient(conn).Check(ctx, engine.CheckRequest{EnvID: envID, Action: action})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out.AsMap())
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", "localhost:50052", "gridrules gRPC address")
	f.StringVar(&envID, "env", "", "environment id")
	f.StringVar(&actionPath, "action", "", "action (YAML or JSON)")
	f.StringVar(&token, "token", "", "JWT access token")
	f.DurationVar(&timeout, "timeout", 5*time.Second, "call timeout")
	_ = cmd.MarkFlagRequired("env")
	_ = cmd.MarkFlagRequired("action")

	return cmd
}
