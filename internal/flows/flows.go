// Package flows declares the five PayFi actions as step lists over action.Machine.
package flows

import (
	"context"
	"errors"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/xueqianLu/payfi/internal/action"
	"github.com/xueqianLu/payfi/internal/backend"
	"github.com/xueqianLu/payfi/internal/poller"
	"github.com/xueqianLu/payfi/internal/txcodec"
	"github.com/xueqianLu/payfi/internal/wallet"
)

// Phases used by the flows in addition to idle, signing and the terminal ones.
const (
	PhasePreparing  action.Phase = "preparing"
	PhaseCreating   action.Phase = "creating"
	PhaseGettingTx  action.Phase = "getting_tx"
	PhaseConfirming action.Phase = "confirming"
	PhaseSubmitting action.Phase = "submitting"
	PhaseVerifying  action.Phase = "verifying"
	PhaseMinting    action.Phase = "minting"
)

// CaveatFinalisationPending is set on runs that succeeded before the backend reported
// a final state.
const CaveatFinalisationPending = "finalisation pending"

// Signer signs and broadcasts a transaction. *wallet.Wallet implements it.
type Signer interface {
	SignAndSend(ctx context.Context, intent *txcodec.Intent) (common.Hash, error)
}

// Confirmer waits for a transaction to be mined. *chain.ReceiptWaiter implements it.
type Confirmer interface {
	Wait(ctx context.Context, txHash common.Hash, confirmations uint64) (*types.Receipt, error)
}

// Deps are the collaborators shared by every flow.
type Deps struct {
	Wallet        Signer
	Receipts      Confirmer
	Confirmations uint64
	// ChainID is the chain the wallet signs for. Structured params prepared for
	// another chain are refused; zero skips the check.
	ChainID int64
	Poll          poller.Options
	Log           zerolog.Logger
	Observers     []action.Observer
}

// Runner is the surface every flow exposes besides its entry points.
type Runner interface {
	Snapshot() action.Run
	Reset() error
	StatusText() string
}

// flowError is a failure decided by a flow itself, with a message for the user.
type flowError struct {
	msg  string
	kind action.ErrorKind
}

func (e *flowError) Error() string       { return e.msg }
func (e *flowError) UserMessage() string { return e.msg }
func (e *flowError) ErrorKind() string   { return string(e.kind) }

func backendFailure(msg string) error {
	return &flowError{msg: msg, kind: action.ErrorBackend}
}

var errNoIntent = errors.New("no transaction was prepared for signing")

type runner struct {
	m    *action.Machine
	deps Deps
}

func newRunner(flow action.Flow, deps Deps) *runner {
	if deps.Confirmations == 0 {
		deps.Confirmations = 1
	}
	return &runner{m: action.NewMachine(flow, deps.Log, deps.Observers...), deps: deps}
}

// Snapshot returns a copy of the current run.
func (r *runner) Snapshot() action.Run { return r.m.Snapshot() }

// Reset returns a finished run to idle.
func (r *runner) Reset() error { return r.m.Reset() }

// StatusText returns the status string of the current phase.
func (r *runner) StatusText() string { return r.m.Snapshot().Status }

func (r *runner) execute(ctx context.Context, steps ...action.Step) action.Run {
	return r.m.Execute(ctx, steps)
}

// resolveIntent records the transaction described by a raw unsigned payload or, when
// that is empty, by structured params.
func (r *runner) resolveIntent(sc *action.StepContext, raw string, params *backend.TxParams) error {
	var (
		intent *txcodec.Intent
		err    error
	)
	switch {
	case raw != "":
		var path txcodec.Path
		intent, path, err = txcodec.ResolveWithPath(raw)
		if err == nil {
			sc.Logger().Debug().Str("decoder", string(path)).Msg("unsigned transaction resolved")
		}
	case params != nil:
		if params.ChainID != 0 && r.deps.ChainID != 0 && params.ChainID != r.deps.ChainID {
			sc.Logger().Error().Int64("prepared_for", params.ChainID).Int64("wallet_chain", r.deps.ChainID).Msg("chain mismatch")
			return &flowError{msg: "Transaction was prepared for another chain", kind: action.ErrorDecode}
		}
		intent, err = txcodec.FromParams(params.To, params.Data, params.Value)
	default:
		return errNoIntent
	}
	if err != nil {
		return err
	}
	return sc.SetIntent(intent)
}

// signStep hands the prepared intent to the wallet and records the returned hash.
func (r *runner) signStep() action.Step {
	return action.Step{Phase: action.PhaseSigning, Do: func(ctx context.Context, sc *action.StepContext) error {
		intent := sc.Run().Intent
		if intent == nil {
			return errNoIntent
		}
		hash, err := r.deps.Wallet.SignAndSend(ctx, intent)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return wallet.NewSignError(err)
		}
		return sc.SetTxHash(hash)
	}}
}

// confirmStep waits for the signed transaction to be mined and not reverted.
func (r *runner) confirmStep() action.Step {
	return action.Step{Phase: PhaseConfirming, Do: func(ctx context.Context, sc *action.StepContext) error {
		run := sc.Run()
		receipt, err := r.deps.Receipts.Wait(ctx, *run.TxHash, r.deps.Confirmations)
		if err != nil {
			return err
		}
		if receipt.BlockNumber != nil {
			return sc.SetDetail("blockNumber", receipt.BlockNumber.String())
		}
		return nil
	}}
}

// verify polls until the backend reports a final state. Running out of attempts
// ends the run in success with a caveat; a failed state returns failed().
func verify[S any](ctx context.Context, sc *action.StepContext, r *runner, p poller.Poller[S], failed func() error) error {
	p.Options = r.deps.Poll
	p.Options.Logger = *sc.Logger()
	ok, err := p.PollUntilTerminal(ctx)
	switch {
	case errors.Is(err, poller.ErrTimeout):
		sc.Logger().Warn().Msg("backend did not reach a final state in time")
		return sc.Succeed(CaveatFinalisationPending)
	case err != nil:
		return err
	case !ok:
		return failed()
	}
	return nil
}

// checkAck turns a negative acknowledgement into an error.
func checkAck(ack *backend.Ack, fallback string) error {
	if ack == nil || ack.Success {
		return nil
	}
	if ack.Message != "" {
		return backendFailure(ack.Message)
	}
	return backendFailure(fallback)
}

// noteStatus records a polled status field and reports whether the run accepted it.
func noteStatus(sc *action.StepContext, key, value string) bool {
	if err := sc.SetDetail(key, value); err != nil {
		sc.Logger().Warn().Err(err).Str("key", key).Msg("could not record status")
		return false
	}
	return true
}

func txHashString(sc *action.StepContext) string {
	if h := sc.Run().TxHash; h != nil {
		return h.Hex()
	}
	return ""
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

// labels builds a status table from the shared entries plus the flow's own.
func labels(noun string, own map[action.Phase]string) map[action.Phase]string {
	m := map[action.Phase]string{
		action.PhaseIdle:    "Ready",
		action.PhaseSigning: "Waiting for wallet signature",
		PhaseConfirming:     "Waiting for on-chain confirmation",
		action.PhaseSuccess: noun + " completed",
		action.PhaseError:   noun + " failed",
	}
	for k, v := range own {
		m[k] = v
	}
	return m
}
