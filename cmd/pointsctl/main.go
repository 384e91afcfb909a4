/*
pointsctl - Admin command line for the recognition engine

PURPOSE:
  Operator tasks that should not need the HTTP API or a bearer token:
  running a distribution by hand, inspecting a wallet, projecting the
  yearly budget, applying seed files and minting development tokens.

USAGE:
  pointsctl distribute [--org acme-corp]
  pointsctl balance <user-id> [--history 20]
  pointsctl budget <org-slug>
  pointsctl seed <file.yaml>
  pointsctl token --sub kc-alice --org "Acme Corp" --role admin

  Configuration comes from the same environment keys as the server
  (config/config.go); --env points at a .env file.
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/warp/recognition-engine/api"
	"github.com/warp/recognition-engine/config"
)

var Version = "dev"

func main() {
	var envFile string
	rootCmd := &cobra.Command{
		Use:           "pointsctl",
		Short:         "pointsctl - Admin tool for the recognition points ledger",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "Path to a .env file (default .env)")

	env := func() string { return envFile }
	rootCmd.AddCommand(distributeCmd(env))
	rootCmd.AddCommand(balanceCmd(env))
	rootCmd.AddCommand(budgetCmd(env))
	rootCmd.AddCommand(seedCmd(env))
	rootCmd.AddCommand(tokenCmd(env))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session is a loaded configuration plus an open service graph.
type session struct {
	cfg config.Config
	log *logrus.Logger
	svc *api.Services
}

func openSession(ctx context.Context, envFile string) (*session, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	log := cfg.NewLogger()
	// Keep stdout for command output.
	log.SetOutput(os.Stderr)

	svc, err := api.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, log: log, svc: svc}, nil
}

func (s *session) Close() {
	if err := s.svc.Close(); err != nil {
		s.log.WithError(err).Warn("close failed")
	}
}
