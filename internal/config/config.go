package config

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/config"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/cellcodec"
	"github.com/txsociety/ton-agent/pkg/core"
	"github.com/txsociety/ton-agent/pkg/dex"
	"golang.org/x/crypto/ed25519"
)

type Config struct {
	Port        int                 `env:"PORT" envDefault:"8081"`
	LogLevel    slog.Level          `env:"LOG_LEVEL" envDefault:"INFO"`
	Token       string              `env:"TOKEN"`
	PostgresURI string              `env:"POSTGRES_URI"`
	LiteServers []config.LiteServer `env:"LITE_SERVERS"`
	// EmulateGetMethods runs get-methods in a local TVM instead of on lite servers.
	EmulateGetMethods bool `env:"EMULATE_GET_METHODS"`

	WalletSeed     string `env:"WALLET_SEED"` // 32 bytes in hex representation
	WalletMnemonic string `env:"WALLET_MNEMONIC"`
	// WalletAddress overrides the v4r2 address derived from the key.
	WalletAddress    *ton.AccountID
	RawWalletAddress string `env:"WALLET_ADDRESS"`

	TxTTL         time.Duration `env:"TX_TTL" envDefault:"2m"`
	PollInterval  time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`
	MaxPolls      int           `env:"MAX_POLLS" envDefault:"60"`
	EffectPolls   int           `env:"EFFECT_POLLS" envDefault:"15"`
	RetryAttempts uint64        `env:"RETRY_ATTEMPTS" envDefault:"5"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	AMQPURL         string `env:"AMQP_URL"`
	AMQPQueue       string `env:"AMQP_QUEUE"`
	WebhookEndpoint string `env:"WEBHOOK_ENDPOINT"`

	// MinterCode and JettonWalletCode are hex or base64 BOCs used to deploy new minters.
	MinterCode       string `env:"MINTER_CODE"`
	JettonWalletCode string `env:"JETTON_WALLET_CODE"`

	DexRegistry string `env:"DEX_REGISTRY"`
	Registry    dex.Registry
}

// Load reads the environment and panics on invalid configuration.
func Load() Config {
	c, err := Parse()
	if err != nil {
		panic("parse config error: " + err.Error())
	}
	return c
}

func Parse() (Config, error) {
	var (
		c  Config
		ll slog.Level
	)
	if err := env.ParseWithFuncs(&c, map[reflect.Type]env.ParserFunc{
		reflect.TypeOf(ll): func(v string) (interface{}, error) {
			var level slog.Level
			err := level.UnmarshalText([]byte(v))
			return level, err
		},
		reflect.TypeOf([]config.LiteServer{}): func(v string) (interface{}, error) {
			servers, err := config.ParseLiteServersEnvVar(v)
			if err != nil {
				return nil, err
			}
			return servers, nil
		},
	}); err != nil {
		return Config{}, err
	}
	if c.RawWalletAddress != "" {
		addr, err := ton.ParseAccountID(c.RawWalletAddress)
		if err != nil {
			return Config{}, fmt.Errorf("invalid WALLET_ADDRESS: %w", err)
		}
		c.WalletAddress = &addr
	}
	if c.DexRegistry != "" {
		r, err := dex.LoadRegistry(c.DexRegistry)
		if err != nil {
			return Config{}, err
		}
		c.Registry = r
	}
	return c, nil
}

// Codes decodes the configured contract codes. Both are nil when unset.
func (c Config) Codes() (minter, wallet *boc.Cell, err error) {
	if c.MinterCode == "" || c.JettonWalletCode == "" {
		return nil, nil, nil
	}
	if minter, err = cellcodec.DecodeCode(c.MinterCode); err != nil {
		return nil, nil, fmt.Errorf("MINTER_CODE: %w", err)
	}
	if wallet, err = cellcodec.DecodeCode(c.JettonWalletCode); err != nil {
		return nil, nil, fmt.Errorf("JETTON_WALLET_CODE: %w", err)
	}
	return minter, wallet, nil
}

// PrivateKey derives the wallet key from the seed or, failing that, the mnemonic.
func (c Config) PrivateKey() (ed25519.PrivateKey, error) {
	switch {
	case c.WalletSeed != "":
		return core.PrivateKeyFromSeed(c.WalletSeed)
	case c.WalletMnemonic != "":
		return core.PrivateKeyFromMnemonic(c.WalletMnemonic)
	}
	return nil, errors.New("WALLET_SEED or WALLET_MNEMONIC is required")
}

func (c Config) Validate() error {
	if c.MaxPolls <= 0 {
		return fmt.Errorf("MAX_POLLS must be positive, got %d", c.MaxPolls)
	}
	if c.EffectPolls <= 0 {
		return fmt.Errorf("EFFECT_POLLS must be positive, got %d", c.EffectPolls)
	}
	if c.TxTTL <= 0 {
		return fmt.Errorf("TX_TTL must be positive, got %v", c.TxTTL)
	}
	return nil
}
