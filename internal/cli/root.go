// Package cli is the operator command line. It talks to lite servers directly and
// reads the same environment as the API service.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/txsociety/ton-agent/internal/config"
	"github.com/txsociety/ton-agent/pkg/agent"
	"github.com/txsociety/ton-agent/pkg/blockchain"
	"github.com/txsociety/ton-agent/pkg/dex"
	"github.com/txsociety/ton-agent/pkg/jetton"
	"github.com/txsociety/ton-agent/pkg/txn"
)

var (
	timeout time.Duration
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "agentctl",
	Short:         "Inspect and operate the TON agent wallet",
	Version:       "dev",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// Execute runs the root command. It is called once by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall command timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")
}

// session is a connected lite client, and the agent when the command needs a wallet.
type session struct {
	cfg    config.Config
	client *blockchain.Client
	agent  *agent.Agent
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

func connect(ctx context.Context) (*session, error) {
	cfg, err := config.Parse()
	if err != nil {
		return nil, err
	}
	client, err := blockchain.New(cfg.LiteServers, cfg.EmulateGetMethods)
	if err != nil {
		return nil, fmt.Errorf("blockchain connection: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &session{cfg: cfg, client: client, cancel: cancel, wg: new(sync.WaitGroup)}
	client.RunBlockWatcher(ctx, nil, s.wg)
	if ctx.Err() != nil {
		s.close()
		return nil, ctx.Err()
	}
	return s, nil
}

// connectAgent also requires the wallet key and a deployed wallet.
func connectAgent(ctx context.Context) (*session, error) {
	s, err := connect(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cfg.Validate(); err != nil {
		s.close()
		return nil, err
	}
	key, err := s.cfg.PrivateKey()
	if err != nil {
		s.close()
		return nil, err
	}
	minterCode, walletCode, err := s.cfg.Codes()
	if err != nil {
		s.close()
		return nil, err
	}
	s.agent, err = agent.New(ctx, s.client, agent.Options{
		Key:           key,
		WalletAddress: s.cfg.WalletAddress,
		Protocol: txn.Config{
			TTL:          s.cfg.TxTTL,
			PollInterval: s.cfg.PollInterval,
			MaxPolls:     s.cfg.MaxPolls,
			EffectPolls:  s.cfg.EffectPolls,
			Retry:        txn.RetryConfig{Attempts: s.cfg.RetryAttempts},
		},
		Codes:    jetton.Codes{Minter: minterCode, Wallet: walletCode},
		Registry: s.cfg.Registry,
		Dex:      dex.DefaultConfig(),
	})
	if err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) resolver() (*jetton.WalletResolver, error) {
	if s.agent != nil {
		return s.agent.Jettons().Resolver(), nil
	}
	return jetton.NewWalletResolver(s.client, 64)
}

func (s *session) close() {
	if s.agent != nil {
		if err := s.agent.Close(); err != nil {
			slog.Warn("agent close", "error", err)
		}
	}
	s.cancel()
	s.wg.Wait()
}

// run wraps a command body with the timeout and a session.
func run(withAgent bool, f func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		open := connect
		if withAgent {
			open = connectAgent
		}
		s, err := open(ctx)
		if err != nil {
			return err
		}
		defer s.close()
		return f(ctx, s, cmd, args)
	}
}

func printJson(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
