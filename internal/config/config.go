package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Backend BackendConfig `mapstructure:"backend"`
	Chain   ChainConfig   `mapstructure:"chain"`
	Poll    PollConfig    `mapstructure:"poll"`
	Wallet  WalletConfig  `mapstructure:"wallet"`
	Journal JournalConfig `mapstructure:"journal"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig holds the orchestration service configuration.
type ServerConfig struct {
	Port    string `mapstructure:"port"`
	Address string `mapstructure:"address"`
}

// AuthConfig holds the HMAC credentials callers of the service must present.
type AuthConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

// BackendConfig points at the PayFi backend.
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ChainConfig holds the RPC endpoint and receipt wait settings.
type ChainConfig struct {
	RPCURL              string        `mapstructure:"rpc_url"`
	ChainID             int64         `mapstructure:"chain_id"`
	Confirmations       uint64        `mapstructure:"confirmations"`
	ReceiptTimeout      time.Duration `mapstructure:"receipt_timeout"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval"`
}

// PollConfig tunes the backend status poller.
type PollConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Interval    time.Duration `mapstructure:"interval"`
}

// WalletConfig selects where signing keys live.
type WalletConfig struct {
	Type   string       `mapstructure:"type"` // "local", "vault" or "remote"
	From   string       `mapstructure:"from"`
	Local  LocalConfig  `mapstructure:"local"`
	Vault  VaultConfig  `mapstructure:"vault"`
	Remote RemoteConfig `mapstructure:"remote"`
}

// LocalConfig holds the configuration for the local key manager.
type LocalConfig struct {
	KeyDir   string `mapstructure:"key_dir"`
	Password string `mapstructure:"password"`
}

// VaultConfig holds the Vault configuration.
type VaultConfig struct {
	Address     string `mapstructure:"address"`
	Token       string `mapstructure:"token"`
	TransitPath string `mapstructure:"transit_path"`
	KeyName     string `mapstructure:"key_name"`
}

// RemoteConfig points at an HMAC-authenticated signer service.
type RemoteConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

// JournalConfig locates the run journal database.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// EnvPrefix is prepended to every environment override, e.g. PAYFI_CHAIN_RPC_URL.
const EnvPrefix = "PAYFI"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.address", "")
	v.SetDefault("backend.timeout", 15*time.Second)
	v.SetDefault("chain.chain_id", 56)
	v.SetDefault("chain.confirmations", 1)
	v.SetDefault("chain.receipt_timeout", 3*time.Minute)
	v.SetDefault("chain.receipt_poll_interval", 2*time.Second)
	v.SetDefault("poll.max_attempts", 30)
	v.SetDefault("poll.interval", 2*time.Second)
	v.SetDefault("wallet.type", "local")
	v.SetDefault("wallet.local.key_dir", "./keystore")
	v.SetDefault("wallet.vault.address", "http://127.0.0.1:8200")
	v.SetDefault("wallet.vault.transit_path", "transit")
	v.SetDefault("journal.path", "payfi.db")
	v.SetDefault("log.level", "info")

	// Keys without a default are bound explicitly so Unmarshal sees their env values.
	for _, key := range []string{
		"auth.api_key", "auth.api_secret",
		"backend.base_url", "backend.token",
		"chain.rpc_url",
		"wallet.from", "wallet.local.password",
		"wallet.vault.token", "wallet.vault.key_name",
		"wallet.remote.base_url", "wallet.remote.api_key", "wallet.remote.api_secret",
		"log.pretty",
	} {
		_ = v.BindEnv(key)
	}
}

// LoadConfig reads configuration from the config file at path (or ./config.yaml when
// path is empty), a .env file and PAYFI_ environment variables, in increasing priority.
func LoadConfig(path string) (config Config, err error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		if _, err = os.Stat(path); err != nil {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}
	return config, nil
}

// Validate reports the first missing or inconsistent setting.
func (c Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	if c.Chain.RPCURL == "" {
		return errors.New("chain.rpc_url is required")
	}
	if c.Chain.ChainID <= 0 {
		return errors.New("chain.chain_id must be positive")
	}
	switch c.Wallet.Type {
	case "local":
		if c.Wallet.Local.KeyDir == "" {
			return errors.New("wallet.local.key_dir is required")
		}
	case "vault":
		if c.Wallet.Vault.Address == "" || c.Wallet.Vault.TransitPath == "" {
			return errors.New("wallet.vault.address and wallet.vault.transit_path are required")
		}
	case "remote":
		if c.Wallet.Remote.BaseURL == "" {
			return errors.New("wallet.remote.base_url is required")
		}
	default:
		return fmt.Errorf("unknown wallet.type %q", c.Wallet.Type)
	}
	return nil
}

// ValidateServer additionally checks the settings only the HTTP service needs.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Auth.APIKey == "" || c.Auth.APISecret == "" {
		return errors.New("auth.api_key and auth.api_secret are required to serve")
	}
	return nil
}
