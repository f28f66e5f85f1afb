package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/core"
	"github.com/txsociety/ton-agent/pkg/dex"
)

var (
	transferMaster string
	depositAssets  []string
	depositNative  string
	depositMinLP   string
	withdrawAmount string
	claimNative    bool
)

var transferCmd = &cobra.Command{
	Use:   "transfer <to> <amount>",
	Short: "Send jettons of --master from the agent wallet",
	Args:  cobra.ExactArgs(2),
	RunE: run(true, func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error {
		to, err := ton.ParseAccountID(args[0])
		if err != nil {
			return fmt.Errorf("invalid recipient: %w", err)
		}
		if transferMaster == "" {
			return core.ErrMasterRequired
		}
		master, err := ton.ParseAccountID(transferMaster)
		if err != nil {
			return fmt.Errorf("invalid master: %w", err)
		}
		amount, err := s.humanAmount(ctx, core.JettonAsset(master), args[1])
		if err != nil {
			return err
		}
		res, err := s.agent.Jettons().Transfer(ctx, amount, to, &master)
		return printOperation(cmd.OutOrStdout(), res, err)
	}),
}

var buyCmd = &cobra.Command{
	Use:   "buy <nft>",
	Short: "Buy an NFT listed at a fixed price",
	Args:  cobra.ExactArgs(1),
	RunE: run(true, func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error {
		nft, err := ton.ParseAccountID(args[0])
		if err != nil {
			return fmt.Errorf("invalid nft: %w", err)
		}
		res, err := s.agent.Market().Buy(ctx, nft)
		return printOperation(cmd.OutOrStdout(), res, err)
	}),
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <nft>",
	Short: "Cancel a listing owned by the agent",
	Args:  cobra.ExactArgs(1),
	RunE: run(true, func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error {
		nft, err := ton.ParseAccountID(args[0])
		if err != nil {
			return fmt.Errorf("invalid nft: %w", err)
		}
		res, err := s.agent.Market().Cancel(ctx, nft)
		return printOperation(cmd.OutOrStdout(), res, err)
	}),
}

var bidCmd = &cobra.Command{
	Use:   "bid <nft> <amount>",
	Short: "Bid on an auction, amount in TON",
	Args:  cobra.ExactArgs(2),
	RunE: run(true, func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error {
		nft, err := ton.ParseAccountID(args[0])
		if err != nil {
			return fmt.Errorf("invalid nft: %w", err)
		}
		amount, err := core.ParseAmount(args[1], core.NativeDecimals)
		if err != nil {
			return err
		}
		res, err := s.agent.Market().Bid(ctx, nft, amount)
		return printOperation(cmd.OutOrStdout(), res, err)
	}),
}

var poolCmd = &cobra.Command{
	Use:   "pool <backend> <asset> <asset>",
	Short: "Show the state of a volatile pool",
	Args:  cobra.ExactArgs(3),
	RunE: run(true, func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error {
		pair, err := parsePair(args[1], args[2])
		if err != nil {
			return err
		}
		state, err := s.agent.Dex().PoolState(ctx, args[0], pair)
		if err != nil {
			return err
		}
		return printJson(cmd.OutOrStdout(), map[string]string{"pair": pair.String(), "state": state.String()})
	}),
}

var createPoolCmd = &cobra.Command{
	Use:   "create-pool <backend> <asset> <asset>",
	Short: "Create a volatile pool and the vaults it needs",
	Args:  cobra.ExactArgs(3),
	RunE: run(true, func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error {
		pair, err := parsePair(args[1], args[2])
		if err != nil {
			return err
		}
		res, err := s.agent.Dex().CreatePool(ctx, args[0], pair)
		return printResult(cmd.OutOrStdout(), res, err)
	}),
}

var depositCmd = &cobra.Command{
	Use:   "deposit <backend>",
	Short: "Add liquidity, creating the pool when needed",
	Example: `  agentctl deposit dedust --native 5 --asset EQ...=100
  agentctl deposit stonfi --asset EQ...=10 --asset EQ...=20`,
	Args: cobra.ExactArgs(1),
	RunE: run(true, func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error {
		var req dex.DepositRequest
		for _, raw := range depositAssets {
			asset, value, err := parseAssetAmount(raw)
			if err != nil {
				return err
			}
			amount, err := s.humanAmount(ctx, asset, value)
			if err != nil {
				return err
			}
			if asset.IsNative() {
				req.NativeAmount = amount
				continue
			}
			req.Assets = append(req.Assets, core.AssetAmount{Asset: asset, Amount: amount})
		}
		if depositNative != "" {
			amount, err := core.ParseAmount(depositNative, core.NativeDecimals)
			if err != nil {
				return err
			}
			req.NativeAmount = amount
		}
		if depositMinLP != "" {
			v, ok := new(big.Int).SetString(depositMinLP, 10)
			if !ok {
				return fmt.Errorf("invalid --min-lp %q", depositMinLP)
			}
			req.MinLPOut = v
		}
		res, err := s.agent.Dex().Deposit(ctx, args[0], req)
		return printResult(cmd.OutOrStdout(), res, err)
	}),
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw <backend> <asset> <asset>",
	Short: "Burn liquidity tokens, all of them unless --amount is set",
	Args:  cobra.ExactArgs(3),
	RunE: run(true, func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error {
		pair, err := parsePair(args[1], args[2])
		if err != nil {
			return err
		}
		var amount *big.Int
		if withdrawAmount != "" {
			v, ok := new(big.Int).SetString(withdrawAmount, 10)
			if !ok {
				return fmt.Errorf("invalid --amount %q", withdrawAmount)
			}
			amount = v
		}
		res, err := s.agent.Dex().Withdraw(ctx, args[0], pair, amount)
		return printOperation(cmd.OutOrStdout(), res, err)
	}),
}

var claimCmd = &cobra.Command{
	Use:   "claim <backend> [jetton...]",
	Short: "Claim accumulated fees, one transaction per asset",
	Args:  cobra.MinimumNArgs(1),
	RunE: run(true, func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error {
		native := claimNative
		var assets []core.Asset
		for _, raw := range args[1:] {
			a, err := core.ParseAsset(raw)
			if err != nil {
				return err
			}
			if a.IsNative() {
				native = true
				continue
			}
			assets = append(assets, a)
		}
		results, err := s.agent.Dex().ClaimFee(ctx, args[0], assets, native)
		out := make([]map[string]any, 0, len(results))
		for _, r := range results {
			item := map[string]any{"asset": r.Asset.String()}
			if r.Result.Operation.Status != "" {
				item["operation"] = core.ConvertOperationToPrintable(r.Result.Operation, r.Result.Details)
			}
			if r.Err != nil {
				item["error"] = r.Err.Error()
			}
			out = append(out, item)
		}
		if len(out) > 0 {
			if perr := printJson(cmd.OutOrStdout(), out); perr != nil {
				return perr
			}
		}
		return err
	}),
}

// humanAmount converts a decimal amount using the asset's decimals.
func (s *session) humanAmount(ctx context.Context, asset core.Asset, value string) (*big.Int, error) {
	if asset.IsNative() {
		return core.ParseAmount(value, core.NativeDecimals)
	}
	resolver, err := s.resolver()
	if err != nil {
		return nil, err
	}
	d, err := resolver.JettonData(ctx, *asset.Jetton())
	if err != nil {
		return nil, err
	}
	return core.ParseAmount(value, decimalsOf(d.Metadata))
}

// parseAssetAmount splits "asset=amount".
func parseAssetAmount(s string) (core.Asset, string, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || value == "" {
		return core.Asset{}, "", fmt.Errorf("expected asset=amount, got %q", s)
	}
	asset, err := core.ParseAsset(name)
	if err != nil {
		return core.Asset{}, "", err
	}
	return asset, value, nil
}

func parsePair(first, second string) (dex.Pair, error) {
	a, err := core.ParseAsset(first)
	if err != nil {
		return dex.Pair{}, err
	}
	b, err := core.ParseAsset(second)
	if err != nil {
		return dex.Pair{}, err
	}
	return dex.NewPair(a, b)
}

// printOperation prints the journal record even when the operation failed after submit.
func printOperation(w io.Writer, res core.OperationResult, err error) error {
	if res.Operation.Status != "" {
		if perr := printJson(w, core.ConvertOperationToPrintable(res.Operation, res.Details)); perr != nil {
			return errors.Join(err, perr)
		}
	}
	return err
}

func printResult(w io.Writer, res dex.Result, err error) error {
	for _, step := range res.Steps {
		if perr := printOperation(w, step, nil); perr != nil {
			return errors.Join(err, perr)
		}
	}
	return err
}

func init() {
	transferCmd.Flags().StringVar(&transferMaster, "master", "", "jetton master address")
	depositCmd.Flags().StringArrayVar(&depositAssets, "asset", nil, "asset=amount in human units, repeatable")
	depositCmd.Flags().StringVar(&depositNative, "native", "", "TON amount")
	depositCmd.Flags().StringVar(&depositMinLP, "min-lp", "", "minimum liquidity tokens to receive, base units")
	withdrawCmd.Flags().StringVar(&withdrawAmount, "amount", "", "liquidity tokens to burn, base units")
	claimCmd.Flags().BoolVar(&claimNative, "native", false, "also claim TON fees")
	rootCmd.AddCommand(transferCmd, buyCmd, cancelCmd, bidCmd, poolCmd, createPoolCmd, depositCmd, withdrawCmd, claimCmd)
}
