package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/core"
	"github.com/txsociety/ton-agent/pkg/listing"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Show the agent wallet address, state and DEX backends",
	Args:  cobra.NoArgs,
	RunE: run(true, func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error {
		state, err := s.client.GetAccountState(ctx, s.agent.Wallet())
		if err != nil {
			return err
		}
		return printJson(cmd.OutOrStdout(), map[string]any{
			"address": s.agent.Wallet().ToRaw(),
			"status":  state.Status,
			"dex":     s.agent.Dex().Backends(),
		})
	}),
}

var jettonCmd = &cobra.Command{
	Use:   "jetton <master>",
	Short: "Show jetton data of a minter",
	Args:  cobra.ExactArgs(1),
	RunE: run(false, func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error {
		master, err := ton.ParseAccountID(args[0])
		if err != nil {
			return fmt.Errorf("invalid master: %w", err)
		}
		resolver, err := s.resolver()
		if err != nil {
			return err
		}
		d, err := resolver.JettonData(ctx, master)
		if err != nil {
			return err
		}
		out := map[string]any{
			"master":       master.ToRaw(),
			"total_supply": core.FormatAmount(d.TotalSupply, decimalsOf(d.Metadata)),
			"mintable":     d.Mintable,
			"metadata":     d.Metadata,
		}
		if d.Admin != nil {
			out["admin"] = d.Admin.ToRaw()
		}
		return printJson(cmd.OutOrStdout(), out)
	}),
}

var balanceCmd = &cobra.Command{
	Use:   "balance <master> <owner>",
	Short: "Show the jetton balance of an owner",
	Args:  cobra.ExactArgs(2),
	RunE: run(false, func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error {
		master, err := ton.ParseAccountID(args[0])
		if err != nil {
			return fmt.Errorf("invalid master: %w", err)
		}
		owner, err := ton.ParseAccountID(args[1])
		if err != nil {
			return fmt.Errorf("invalid owner: %w", err)
		}
		resolver, err := s.resolver()
		if err != nil {
			return err
		}
		d, err := resolver.JettonData(ctx, master)
		if err != nil {
			return err
		}
		wallet, balance, err := resolver.Balance(ctx, master, owner)
		if err != nil {
			return err
		}
		return printJson(cmd.OutOrStdout(), map[string]any{
			"wallet":  wallet.ToRaw(),
			"balance": core.FormatAmount(balance, decimalsOf(d.Metadata)),
			"raw":     balance.String(),
		})
	}),
}

var listingCmd = &cobra.Command{
	Use:   "listing <nft>",
	Short: "Show the sale contract currently holding an NFT",
	Args:  cobra.ExactArgs(1),
	RunE: run(false, func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error {
		nft, err := ton.ParseAccountID(args[0])
		if err != nil {
			return fmt.Errorf("invalid nft: %w", err)
		}
		l, err := listing.NewReader(s.client).ListingForNFT(ctx, nft)
		if err != nil {
			return err
		}
		return printJson(cmd.OutOrStdout(), convertListing(l))
	}),
}

func convertListing(l core.Listing) map[string]any {
	out := map[string]any{
		"kind":    l.Kind,
		"address": l.Address.ToRaw(),
		"nft":     l.NFT.ToRaw(),
	}
	if l.Owner != nil {
		out["owner"] = l.Owner.ToRaw()
	}
	if l.IsAuction() {
		out["min_bid"] = core.FormatAmount(l.MinBid, core.NativeDecimals)
		out["last_bid"] = core.FormatAmount(l.LastBid, core.NativeDecimals)
		out["min_step"] = core.FormatAmount(l.MinStep, core.NativeDecimals)
		out["end_time"] = l.EndTime
	}
	if l.FullPrice != nil && l.FullPrice.Sign() > 0 {
		out["full_price"] = core.FormatAmount(l.FullPrice, core.NativeDecimals)
	}
	return out
}

// decimalsOf reads the TEP-64 decimals field, 9 when it is absent or broken.
func decimalsOf(metadata map[string]string) int32 {
	v, ok := metadata["decimals"]
	if !ok {
		return core.NativeDecimals
	}
	d, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return core.NativeDecimals
	}
	return int32(d)
}

func init() {
	rootCmd.AddCommand(walletCmd, jettonCmd, balanceCmd, listingCmd)
}
