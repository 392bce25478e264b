package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"

	"github.com/xueqianLu/payfi/internal/action"
	"github.com/xueqianLu/payfi/internal/backend"
	"github.com/xueqianLu/payfi/internal/chain"
	"github.com/xueqianLu/payfi/internal/flows"
	"github.com/xueqianLu/payfi/internal/journal"
	"github.com/xueqianLu/payfi/internal/monitor"
	"github.com/xueqianLu/payfi/internal/poller"
	"github.com/xueqianLu/payfi/internal/txcodec"
	"github.com/xueqianLu/payfi/internal/wallet"
)

// app holds everything a flow needs.
type app struct {
	eth     *ethclient.Client
	wallet  *wallet.Wallet
	backend *backend.Client
	journal *journal.Journal
	deps    flows.Deps
}

func (a *app) Close() {
	if a.journal != nil {
		_ = a.journal.Close()
	}
	if a.eth != nil {
		a.eth.Close()
	}
}

// newApp wires config into live collaborators. reg may be nil when metrics are not served.
func newApp(ctx context.Context, approver wallet.Approver, reg prometheus.Registerer) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	eth, err := chain.Dial(cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}
	a := &app{eth: eth}

	chainID := big.NewInt(cfg.Chain.ChainID)
	if remote, err := eth.ChainID(ctx); err != nil {
		log.Warn().Err(err).Msg("could not query chain id")
	} else if remote.Cmp(chainID) != 0 {
		a.Close()
		return nil, fmt.Errorf("rpc serves chain %s, configured chain_id is %s", remote, chainID)
	}

	km, err := newKeyManager()
	if err != nil {
		a.Close()
		return nil, err
	}
	var from common.Address
	if cfg.Wallet.From != "" {
		if !common.IsHexAddress(cfg.Wallet.From) {
			a.Close()
			return nil, fmt.Errorf("wallet.from %q is not an address", cfg.Wallet.From)
		}
		from = common.HexToAddress(cfg.Wallet.From)
	}
	a.wallet, err = wallet.New(km, from, eth, chainID, approver, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.journal, err = journal.Open(cfg.Journal.Path, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.backend = backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token, cfg.Backend.Timeout, backend.WithLogger(log))

	observers := []action.Observer{a.journal}
	if reg != nil {
		observers = append(observers, monitor.NewActionMetrics(reg))
	}
	a.deps = flows.Deps{
		Wallet:        a.wallet,
		Receipts:      chain.NewReceiptWaiter(eth, cfg.Chain.ReceiptPollInterval, cfg.Chain.ReceiptTimeout, log),
		Confirmations: cfg.Chain.Confirmations,
		ChainID:       cfg.Chain.ChainID,
		Poll:          poller.Options{MaxAttempts: cfg.Poll.MaxAttempts, Interval: cfg.Poll.Interval},
		Log:           log,
		Observers:     observers,
	}
	log.Info().Str("address", a.wallet.Address().Hex()).Int64("chain_id", cfg.Chain.ChainID).Msg("wallet ready")
	return a, nil
}

func newKeyManager() (wallet.KeyManager, error) {
	switch cfg.Wallet.Type {
	case "local":
		return newLocalKeyManager()
	case "vault":
		client, err := wallet.NewVaultClient(cfg.Wallet.Vault.Address, cfg.Wallet.Vault.Token)
		if err != nil {
			return nil, err
		}
		return wallet.NewVaultKeyManager(client.Logical(), cfg.Wallet.Vault.TransitPath, cfg.Wallet.Vault.KeyName, log)
	case "remote":
		return wallet.NewRemoteKeyManager(cfg.Wallet.Remote.BaseURL, cfg.Wallet.Remote.APIKey, cfg.Wallet.Remote.APISecret), nil
	default:
		return nil, fmt.Errorf("unknown wallet.type %q", cfg.Wallet.Type)
	}
}

func newLocalKeyManager() (*wallet.LocalKeyManager, error) {
	password := cfg.Wallet.Local.Password
	if password == "" {
		var err error
		password, err = readSecret("Keystore password: ")
		if err != nil {
			return nil, err
		}
	}
	return wallet.NewLocalKeyManager(cfg.Wallet.Local.KeyDir, password, log)
}

func readSecret(prompt string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("%sstdin is not a terminal", strings.ToLower(prompt))
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

// approver returns the signature prompt, or AutoApprove under --yes.
func approver() wallet.Approver {
	if assumeYes {
		return wallet.AutoApprove
	}
	in := bufio.NewReader(os.Stdin)
	return func(ctx context.Context, from common.Address, intent *txcodec.Intent, chainID *big.Int) (bool, error) {
		fmt.Fprintln(os.Stderr, "---------------- transaction ----------------")
		fmt.Fprintf(os.Stderr, "chain:  %s\n", chainID)
		fmt.Fprintf(os.Stderr, "from:   %s\n", from.Hex())
		fmt.Fprintf(os.Stderr, "to:     %s\n", intent.To.Hex())
		fmt.Fprintf(os.Stderr, "value:  %s wei\n", intent.ValueInt())
		fmt.Fprintf(os.Stderr, "data:   %d bytes\n", len(intent.Data))
		fmt.Fprint(os.Stderr, "sign and send? [y/N] ")
		answer, err := in.ReadString('\n')
		if err != nil && answer == "" {
			return false, fmt.Errorf("failed to read answer: %w", err)
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes", nil
	}
}

// printRun writes run as JSON and turns an error run into a command error.
func printRun(run action.Run) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(run); err != nil {
		return err
	}
	if run.Phase == action.PhaseError {
		return fmt.Errorf("%s failed: %s", run.Action, run.ErrorMessage)
	}
	if run.Caveat != "" {
		fmt.Fprintf(os.Stderr, "note: %s\n", run.Caveat)
	}
	return nil
}
