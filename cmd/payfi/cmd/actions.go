package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/xueqianLu/payfi/internal/action"
	"github.com/xueqianLu/payfi/internal/backend"
	"github.com/xueqianLu/payfi/internal/flows"
	"github.com/xueqianLu/payfi/internal/journal"
)

// runAction builds the app, runs exec under a signal-aware context and prints the run.
func runAction(exec func(ctx context.Context, a *app) action.Run) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, approver(), nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return printRun(exec(ctx, a))
}

func decimalFlag(cmd *cobra.Command, name string) (decimal.Decimal, error) {
	s, _ := cmd.Flags().GetString(name)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}

var burnCmd = &cobra.Command{
	Use:   "burn",
	Short: "Burn PIC worth a USDT amount (multiples of 100)",
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimalFlag(cmd, "amount")
		if err != nil {
			return err
		}
		if err := flows.ValidateBurnAmount(amount); err != nil {
			return err
		}
		return runAction(func(ctx context.Context, a *app) action.Run {
			return flows.NewBurn(a.backend, a.deps).Burn(ctx, amount)
		})
	},
}

var stakeCmd = &cobra.Command{
	Use:   "stake",
	Short: "Stake an NFT",
	RunE: func(cmd *cobra.Command, args []string) error {
		tokenID, _ := cmd.Flags().GetInt64("token-id")
		nft := flows.NFT{TokenID: tokenID}
		if err := nft.Validate(); err != nil {
			return err
		}
		return runAction(func(ctx context.Context, a *app) action.Run {
			return flows.NewStake(a.backend, a.deps).Stake(ctx, nft)
		})
	},
}

var swapCmd = &cobra.Command{
	Use:   "swap",
	Short: "Swap one token for another",
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimalFlag(cmd, "amount")
		if err != nil {
			return err
		}
		slippage, err := decimalFlag(cmd, "slippage")
		if err != nil {
			return err
		}
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		req := backend.SwapOrderRequest{FromToken: from, ToToken: to, Amount: amount, Slippage: slippage}
		return runAction(func(ctx context.Context, a *app) action.Run {
			return flows.NewSwap(a.backend, a.deps).Swap(ctx, req)
		})
	},
}

var purchaseCmd = &cobra.Command{
	Use:   "purchase",
	Short: "Buy NFTs of a tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, _ := cmd.Flags().GetInt64("tier")
		quantity, _ := cmd.Flags().GetInt("quantity")
		token, _ := cmd.Flags().GetString("payment-token")
		req := backend.CreateOrderRequest{TierID: tier, Quantity: quantity, PaymentToken: token}
		return runAction(func(ctx context.Context, a *app) action.Run {
			return flows.NewPurchase(a.backend, a.deps).Purchase(ctx, req)
		})
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Withdraw rewards",
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimalFlag(cmd, "amount")
		if err != nil {
			return err
		}
		token, _ := cmd.Flags().GetString("token")
		req := backend.WithdrawOrderRequest{Amount: amount, Token: token}
		return runAction(func(ctx context.Context, a *app) action.Run {
			return flows.NewWithdraw(a.backend, a.deps).Withdraw(ctx, req)
		})
	},
}

var withdrawClaimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Resume the claim of an existing withdrawal order",
	Long: `Claim fetches the unsigned claim transaction of an existing order and signs it.
Without --order the newest withdrawal whose claim failed is resumed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		orderID, _ := cmd.Flags().GetInt64("order")
		return runAction(func(ctx context.Context, a *app) action.Run {
			id := orderID
			if id == 0 {
				open, run, err := a.journal.LatestOpenWithdraw(ctx)
				switch {
				case errors.Is(err, journal.ErrNotFound):
					log.Warn().Msg("no unfinished withdrawal in the journal")
				case err != nil:
					log.Error().Err(err).Msg("failed to read the journal")
				default:
					log.Info().Int64("order_id", open).Str("previous_run", run.ID).Msg("resuming withdrawal")
					id = open
				}
			}
			return flows.NewWithdraw(a.backend, a.deps).ClaimWithdraw(ctx, id)
		})
	},
}

func init() {
	burnCmd.Flags().String("amount", "", "USDT amount to burn")
	_ = burnCmd.MarkFlagRequired("amount")

	stakeCmd.Flags().Int64("token-id", 0, "NFT token id")
	_ = stakeCmd.MarkFlagRequired("token-id")

	swapCmd.Flags().String("from", "", "token to sell")
	swapCmd.Flags().String("to", "", "token to buy")
	swapCmd.Flags().String("amount", "", "amount of --from to sell")
	swapCmd.Flags().String("slippage", "0.5", "maximum slippage in percent")
	_ = swapCmd.MarkFlagRequired("from")
	_ = swapCmd.MarkFlagRequired("to")
	_ = swapCmd.MarkFlagRequired("amount")

	purchaseCmd.Flags().Int64("tier", 0, "NFT tier id")
	purchaseCmd.Flags().Int("quantity", 1, "number of NFTs")
	purchaseCmd.Flags().String("payment-token", "", "token to pay with (backend default when empty)")
	_ = purchaseCmd.MarkFlagRequired("tier")

	withdrawCmd.Flags().String("amount", "", "amount to withdraw")
	withdrawCmd.Flags().String("token", "", "reward token")
	_ = withdrawCmd.MarkFlagRequired("amount")
	withdrawClaimCmd.Flags().Int64("order", 0, "withdrawal order id (default: newest unfinished)")
	withdrawCmd.AddCommand(withdrawClaimCmd)

	rootCmd.AddCommand(burnCmd, stakeCmd, swapCmd, purchaseCmd, withdrawCmd)
}
