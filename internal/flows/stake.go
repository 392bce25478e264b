package flows

import (
	"context"

	"github.com/xueqianLu/payfi/internal/action"
	"github.com/xueqianLu/payfi/internal/backend"
)

// StakeFlow: idle -> preparing -> signing -> confirming -> submitting.
var StakeFlow = action.Flow{
	Kind:   action.KindStake,
	Phases: []action.Phase{PhasePreparing, action.PhaseSigning, PhaseConfirming, PhaseSubmitting},
	Labels: labels("Staking", map[action.Phase]string{
		PhasePreparing:  "Preparing staking transaction",
		PhaseSubmitting: "Submitting stake",
	}),
	DefaultError: "Staking failed, please try again",
}

// NFT is the token the user picked for staking.
type NFT struct {
	TokenID int64 `json:"tokenId"`
	Staked  bool  `json:"staked"`
}

// Validate rejects missing and already staked tokens.
func (n NFT) Validate() error {
	if n.TokenID <= 0 {
		return action.Invalid("tokenId", "select a valid NFT to stake")
	}
	if n.Staked {
		return action.Invalid("tokenId", "this NFT is already staked")
	}
	return nil
}

// StakeBackend is the backend surface used by Stake.
type StakeBackend interface {
	CreateStakeTransaction(ctx context.Context, req backend.StakeTransactionRequest) (*backend.StakeTransaction, error)
	SubmitStaking(ctx context.Context, req backend.SubmitStakingRequest) (*backend.StakingResult, error)
}

// Stake stakes one NFT.
type Stake struct {
	*runner
	backend StakeBackend
}

func NewStake(b StakeBackend, deps Deps) *Stake {
	return &Stake{runner: newRunner(StakeFlow, deps), backend: b}
}

// Stake runs the flow to completion and returns the final run.
func (f *Stake) Stake(ctx context.Context, nft NFT) action.Run {
	return f.execute(ctx,
		action.Step{Phase: PhasePreparing, Do: func(ctx context.Context, sc *action.StepContext) error {
			if err := nft.Validate(); err != nil {
				return err
			}
			stx, err := f.backend.CreateStakeTransaction(ctx, backend.StakeTransactionRequest{TokenID: nft.TokenID})
			if err != nil {
				return err
			}
			if err := sc.SetOrderID(itoa(nft.TokenID)); err != nil {
				return err
			}
			params := stx.UnsignedTx
			if params.To == "" {
				params.To = stx.ContractAddress
			}
			if err := sc.SetDetail("contractAddress", stx.ContractAddress); err != nil {
				return err
			}
			return f.resolveIntent(sc, "", &params)
		}},
		f.signStep(),
		f.confirmStep(),
		action.Step{Phase: PhaseSubmitting, Do: func(ctx context.Context, sc *action.StepContext) error {
			res, err := f.backend.SubmitStaking(ctx, backend.SubmitStakingRequest{TokenID: nft.TokenID, TransactionHash: txHashString(sc)})
			if err != nil {
				return err
			}
			switch res.Status {
			case backend.StakeConfirmed:
				if res.StakeID != 0 {
					if err := sc.SetDetail("stakeId", itoa(res.StakeID)); err != nil {
						return err
					}
				}
				if res.StakeTime != 0 {
					if err := sc.SetDetail("stakeTime", itoa(res.StakeTime)); err != nil {
						return err
					}
				}
				return nil
			case backend.StakeFailed:
				if res.ErrorMessage != "" {
					return backendFailure(res.ErrorMessage)
				}
				return backendFailure("Staking was rejected by the backend")
			default:
				return sc.Succeed(CaveatFinalisationPending)
			}
		}},
	)
}
