package wallet

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"
)

// VaultLogical is the part of the Vault client used for transit keys.
type VaultLogical interface {
	Read(path string) (*api.Secret, error)
	List(path string) (*api.Secret, error)
	Write(path string, data map[string]interface{}) (*api.Secret, error)
}

// VaultKeyManager signs with keys held by the Vault transit secrets engine.
type VaultKeyManager struct {
	logical      VaultLogical
	transitPath  string
	addressToKey map[common.Address]string // ETH address -> Vault key name
	mu           sync.RWMutex
	log          zerolog.Logger
}

// NewVaultClient creates a Vault API client from the environment, overridden by
// address and token when set.
func NewVaultClient(address, token string) (*api.Client, error) {
	vaultConfig := api.DefaultConfig()
	if err := vaultConfig.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to read vault environment: %w", err)
	}
	if address != "" {
		vaultConfig.Address = address
	}
	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}
	return client, nil
}

// NewVaultKeyManager loads the transit keys visible under transitPath. When keyName is
// set only that key is loaded.
func NewVaultKeyManager(logical VaultLogical, transitPath, keyName string, log zerolog.Logger) (*VaultKeyManager, error) {
	km := &VaultKeyManager{
		logical:      logical,
		transitPath:  strings.Trim(transitPath, "/"),
		addressToKey: make(map[common.Address]string),
		log:          log,
	}

	if keyName != "" {
		address, err := km.getAddressForKey(keyName)
		if err != nil {
			return nil, fmt.Errorf("failed to load vault key %q: %w", keyName, err)
		}
		km.addressToKey[address] = keyName
		return km, nil
	}
	if err := km.loadExistingKeys(); err != nil {
		return nil, fmt.Errorf("failed to load existing keys from vault: %w", err)
	}
	return km, nil
}

func (km *VaultKeyManager) loadExistingKeys() error {
	secret, err := km.logical.List(km.transitPath + "/keys")
	if err != nil {
		return err
	}
	if secret == nil || secret.Data["keys"] == nil {
		km.log.Info().Str("path", km.transitPath).Msg("no keys found in vault transit engine")
		return nil
	}

	keys, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return fmt.Errorf("unexpected format for keys from vault")
	}

	km.mu.Lock()
	defer km.mu.Unlock()
	for _, k := range keys {
		keyName, ok := k.(string)
		if !ok {
			continue
		}
		address, err := km.getAddressForKey(keyName)
		if err != nil {
			km.log.Warn().Err(err).Str("key", keyName).Msg("could not derive address for vault key")
			continue
		}
		km.addressToKey[address] = keyName
		km.log.Info().Str("key", keyName).Str("address", address.Hex()).Msg("loaded vault key")
	}
	return nil
}

// GetAccounts returns all managed account addresses.
func (km *VaultKeyManager) GetAccounts() []common.Address {
	km.mu.RLock()
	defer km.mu.RUnlock()

	addresses := make([]common.Address, 0, len(km.addressToKey))
	for addr := range km.addressToKey {
		addresses = append(addresses, addr)
	}
	return addresses
}

func (km *VaultKeyManager) getAddressForKey(keyName string) (common.Address, error) {
	secret, err := km.logical.Read(fmt.Sprintf("%s/keys/%s", km.transitPath, keyName))
	if err != nil {
		return common.Address{}, err
	}
	if secret == nil || secret.Data["keys"] == nil {
		return common.Address{}, fmt.Errorf("key '%s' not found in vault", keyName)
	}

	keysData, ok := secret.Data["keys"].(map[string]interface{})
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected format for key data")
	}

	latestVersion := ""
	for v := range keysData {
		if len(v) > len(latestVersion) || (len(v) == len(latestVersion) && v > latestVersion) {
			latestVersion = v
		}
	}

	keyData, ok := keysData[latestVersion].(map[string]interface{})
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected format for key version data")
	}
	pubKey, ok := keyData["public_key"].(string)
	if !ok {
		return common.Address{}, fmt.Errorf("public key not found in key data")
	}

	return addressFromPublicKey(pubKey)
}

// addressFromPublicKey accepts a PEM encoded PKIX key or a hex encoded secp256k1 key
// (compressed or uncompressed), as returned by secp256k1-capable transit plugins.
func addressFromPublicKey(pubKey string) (common.Address, error) {
	if block, _ := pem.Decode([]byte(pubKey)); block != nil {
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return common.Address{}, fmt.Errorf("failed to parse DER encoded public key: %w", err)
		}
		ecdsaPubKey, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return common.Address{}, fmt.Errorf("key is not an ECDSA public key")
		}
		return crypto.PubkeyToAddress(*ecdsaPubKey), nil
	}

	raw, err := hexutil.Decode(ensure0x(strings.TrimSpace(pubKey)))
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode public key: %w", err)
	}
	var pub *ecdsa.PublicKey
	switch len(raw) {
	case 33:
		pub, err = crypto.DecompressPubkey(raw)
	default:
		pub, err = crypto.UnmarshalPubkey(raw)
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to parse secp256k1 public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func ensure0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}

// signWithVault asks Vault to sign a 32-byte digest and returns r || s with a low s.
func (km *VaultKeyManager) signWithVault(keyName string, digest []byte) ([]byte, error) {
	resp, err := km.logical.Write(fmt.Sprintf("%s/sign/%s", km.transitPath, keyName), map[string]interface{}{
		"input":                base64.StdEncoding.EncodeToString(digest),
		"prehashed":            true,
		"hash_algorithm":       "sha2-256",
		"marshaling_algorithm": "jws",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign with vault: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("empty response from vault")
	}

	signature, ok := resp.Data["signature"].(string)
	if !ok {
		return nil, fmt.Errorf("signature not found in vault response")
	}

	// vault:v<version>:<base64url(r || s)>
	parts := strings.SplitN(signature, ":", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid signature format from vault: %s", signature)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[2], "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode vault signature: %w", err)
	}
	if len(raw) != 64 {
		return nil, fmt.Errorf("unexpected vault signature length %d", len(raw))
	}

	r := new(big.Int).SetBytes(raw[:32])
	s := new(big.Int).SetBytes(raw[32:])
	n := crypto.S256().Params().N
	if s.Cmp(new(big.Int).Rsh(n, 1)) > 0 {
		s.Sub(n, s)
	}

	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return sig, nil
}

// SignTx signs a transaction using a key stored in Vault.
func (km *VaultKeyManager) SignTx(address common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	keyName, err := km.getKeyName(address)
	if err != nil {
		return nil, err
	}

	signer := types.LatestSignerForChainID(chainID)
	txHash := signer.Hash(tx)

	signature, err := km.signWithVault(keyName, txHash.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction with vault: %w", err)
	}

	// Vault returns only r and s; the recovery id is found by trial recovery.
	v, err := recoverV(signature, txHash.Bytes(), address)
	if err != nil {
		return nil, err
	}
	return tx.WithSignature(signer, append(signature, v))
}

func (km *VaultKeyManager) getKeyName(address common.Address) (string, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()

	keyName, ok := km.addressToKey[address]
	if !ok {
		return "", fmt.Errorf("account not found or not managed by this signer: %s", address.Hex())
	}
	return keyName, nil
}

// recoverV finds the recovery id (0 or 1) that recovers expected from sig over hash.
func recoverV(sig, hash []byte, expected common.Address) (byte, error) {
	for i := byte(0); i < 2; i++ {
		withV := make([]byte, 65)
		copy(withV, sig)
		withV[64] = i
		pub, err := crypto.SigToPub(hash, withV)
		if err != nil {
			continue
		}
		if crypto.PubkeyToAddress(*pub) == expected {
			return i, nil
		}
	}
	return 0, fmt.Errorf("could not recover public key for the given signature")
}
