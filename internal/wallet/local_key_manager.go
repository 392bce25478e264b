package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

// LocalKeyManager manages keys stored locally on disk as encrypted keystore files.
type LocalKeyManager struct {
	keyDir   string
	password string
	keys     map[common.Address]*ecdsa.PrivateKey
	mu       sync.RWMutex
	log      zerolog.Logger
}

// NewLocalKeyManager creates a LocalKeyManager and loads the keys in keyDir that
// decrypt with password.
func NewLocalKeyManager(keyDir, password string, log zerolog.Logger) (*LocalKeyManager, error) {
	if err := os.MkdirAll(keyDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	km := &LocalKeyManager{
		keyDir:   keyDir,
		password: password,
		keys:     make(map[common.Address]*ecdsa.PrivateKey),
		log:      log,
	}

	files, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read key directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}
		keyJSON, err := os.ReadFile(filepath.Join(keyDir, file.Name()))
		if err != nil {
			log.Warn().Err(err).Str("file", file.Name()).Msg("failed to read key file")
			continue
		}
		key, err := keystore.DecryptKey(keyJSON, password)
		if err != nil {
			log.Warn().Err(err).Str("file", file.Name()).Msg("failed to decrypt key file")
			continue
		}
		km.keys[key.Address] = key.PrivateKey
		log.Info().Str("address", key.Address.Hex()).Msg("loaded local key")
	}

	return km, nil
}

// CreateKey generates a new key pair and saves it to disk encrypted with the manager's password.
func (km *LocalKeyManager) CreateKey() (common.Address, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to generate private key: %w", err)
	}
	return km.store(privateKey)
}

// ImportKey stores an existing private key, given as hex, in the key directory.
func (km *LocalKeyManager) ImportKey(hexKey string) (common.Address, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to parse private key: %w", err)
	}
	return km.store(privateKey)
}

func (km *LocalKeyManager) store(privateKey *ecdsa.PrivateKey) (common.Address, error) {
	address := crypto.PubkeyToAddress(privateKey.PublicKey)
	keyStruct := &keystore.Key{
		Address:    address,
		PrivateKey: privateKey,
	}
	keyJSON, err := keystore.EncryptKey(keyStruct, km.password, keystore.LightScryptN, keystore.LightScryptP)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to encrypt private key: %w", err)
	}
	filePath := filepath.Join(km.keyDir, address.Hex()+".json")
	if err := os.WriteFile(filePath, keyJSON, 0600); err != nil {
		return common.Address{}, fmt.Errorf("failed to save encrypted key: %w", err)
	}

	km.mu.Lock()
	defer km.mu.Unlock()
	km.keys[address] = privateKey

	km.log.Info().Str("address", address.Hex()).Msg("stored encrypted local key")
	return address, nil
}

// GetAccounts returns all managed account addresses.
func (km *LocalKeyManager) GetAccounts() []common.Address {
	km.mu.RLock()
	defer km.mu.RUnlock()

	addresses := make([]common.Address, 0, len(km.keys))
	for addr := range km.keys {
		addresses = append(addresses, addr)
	}
	return addresses
}

// SignTx signs a transaction using a locally stored private key.
func (km *LocalKeyManager) SignTx(address common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	km.mu.RLock()
	privateKey, ok := km.keys[address]
	km.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("account not found: %s", address.Hex())
	}

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signedTx, nil
}
