package dex

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/core"
	"gopkg.in/yaml.v3"
)

// Registry lists the contract addresses of every enabled backend. A nil section disables it.
type Registry struct {
	DeDust *DeDustConfig `yaml:"dedust"`
	StonFi *StonFiConfig `yaml:"stonfi"`
	Torch  *TorchConfig  `yaml:"torch"`
}

type DeDustConfig struct {
	Factory string `yaml:"factory"`
}

type StonFiConfig struct {
	Router string `yaml:"router"`
	PTON   string `yaml:"pton"`
}

type TorchConfig struct {
	// Experimental must be set: Torch message layouts are not verified on chain.
	Experimental bool `yaml:"experimental"`
	// Ops overrides the default vault opcodes.
	Ops TorchOps `yaml:"ops"`
	// Vaults maps "native" or a jetton master to the vault address.
	Vaults map[string]string `yaml:"vaults"`
	Pools  []TorchPool       `yaml:"pools"`
}

type TorchPool struct {
	Assets  [2]string `yaml:"assets"`
	Address string    `yaml:"address"`
}

func LoadRegistry(path string) (Registry, error) {
	var r Registry
	if path == "" {
		return r, errors.New("registry path cannot be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("read dex registry: %w", err)
	}
	return ParseRegistry(raw)
}

func ParseRegistry(raw []byte) (Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return r, fmt.Errorf("unmarshal dex registry: %w", err)
	}
	return r, nil
}

func parseAddress(field, s string) (ton.AccountID, error) {
	a, err := ton.ParseAccountID(s)
	if err != nil {
		return ton.AccountID{}, fmt.Errorf("invalid %s address %q: %w", field, s, err)
	}
	return a, nil
}

// Build creates the backends of the registry.
func (r Registry) Build(l getter, resolver walletResolver) ([]Backend, error) {
	var backends []Backend
	if r.DeDust != nil {
		factory, err := parseAddress("dedust factory", r.DeDust.Factory)
		if err != nil {
			return nil, err
		}
		backends = append(backends, NewDeDust(factory, l, resolver))
	}
	if r.StonFi != nil {
		router, err := parseAddress("stonfi router", r.StonFi.Router)
		if err != nil {
			return nil, err
		}
		pton, err := parseAddress("stonfi pton", r.StonFi.PTON)
		if err != nil {
			return nil, err
		}
		backends = append(backends, NewStonFi(router, pton, l, resolver))
	}
	if r.Torch != nil {
		t, err := r.Torch.build(resolver)
		if err != nil {
			return nil, err
		}
		backends = append(backends, t)
	}
	return backends, nil
}

func (c TorchConfig) build(resolver walletResolver) (*Torch, error) {
	if !c.Experimental {
		return nil, fmt.Errorf("%w: the torch backend is experimental, set torch.experimental to enable it", core.ErrUnsupportedOperation)
	}
	slog.Warn("torch backend enabled with unverified message layouts", "ops", c.Ops.withDefaults())
	vaults := make(map[core.Asset]ton.AccountID, len(c.Vaults))
	for asset, vault := range c.Vaults {
		a, err := core.ParseAsset(asset)
		if err != nil {
			return nil, err
		}
		v, err := parseAddress("torch vault", vault)
		if err != nil {
			return nil, err
		}
		vaults[a] = v
	}
	pools := make(map[Pair]ton.AccountID, len(c.Pools))
	for _, p := range c.Pools {
		first, err := core.ParseAsset(p.Assets[0])
		if err != nil {
			return nil, err
		}
		second, err := core.ParseAsset(p.Assets[1])
		if err != nil {
			return nil, err
		}
		pair, err := NewPair(first, second)
		if err != nil {
			return nil, err
		}
		pool, err := parseAddress("torch pool", p.Address)
		if err != nil {
			return nil, err
		}
		pools[pair] = pool
	}
	return NewTorch(pools, vaults, c.Ops, resolver), nil
}
