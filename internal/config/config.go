package config

import (
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest"
)

type Config struct {
	Rest    RestConf
	Log     LogConf
	Banner  BannerConf
	Rpc     RpcConf
	Jupiter JupiterConf
	Jito    JitoConf
	Relay   RelayConf
	Wallet  WalletConf
	Cosign  CosignConf
}

type RestConf struct {
	rest.RestConf
}

type LogConf struct {
	logx.LogConf
}

type BannerConf struct {
	Text     string `json:",default=COSIGN"`
	Color    string `json:",default=green"`
	FontName string `json:",default=standard,options=big|larry3d|starwars|standard"`
}

type RpcConf struct {
	Endpoint      string `json:",default=https://api.mainnet-beta.solana.com"`
	Commitment    string `json:",default=confirmed,options=processed|confirmed|finalized"`
	SkipPreflight bool   `json:",default=true"`
	MaxRetries    uint   `json:",default=3"`
}

type JupiterConf struct {
	BaseURL             string `json:",default=https://api.jup.ag/swap/v1"`
	Timeout             int64  `json:",default=10000"` // milliseconds
	Attempts            uint   `json:",default=3"`
	PriorityLevel       string `json:",default=veryHigh,options=medium|high|veryHigh"`
	MaxPriorityLamports uint64 `json:",default=1000000"`
}

type JitoConf struct {
	Enable      bool   `json:",optional"`
	Region      string `json:",default=NY"`
	TipLamports uint64 `json:",default=10000"`
}

// RelayConf describes a sendTransaction relay such as astralane or nozomi.
// The transaction is posted to every url and the first accepted one wins.
type RelayConf struct {
	Enable      bool     `json:",optional"`
	Name        string   `json:",default=relay"`
	Urls        []string `json:",optional"`
	TipAccounts []string `json:",optional"`
	TipLamports uint64   `json:",default=100000"`
	AuthHeader  string   `json:",optional"`
	Timeout     int64    `json:",default=10000"` // milliseconds
}

type WalletConf struct {
	UserKeyEnv     string `json:",default=PRIVATE_KEY"`
	GasPayerKeyEnv string `json:",default=GAS_PAYER_PRIVATE_KEY"`
}

type CosignConf struct {
	KeyEnv              string  `json:",default=COSIGN_PRIVATE_KEY"`
	RemoteURL           string  `json:",optional"`
	ExchangeDir         string  `json:",optional"`
	PolicyFile          string  `json:",optional"`
	CacheSize           int     `json:",default=1024"`
	DedupeCapacity      uint    `json:",default=100000"`
	DedupeFalsePositive float64 `json:",default=0.0001"`
	AuditFile           string  `json:",optional"`
	Submit              bool    `json:",optional"`
}

var ErrMissingKey = errors.New("private key not set")

// LoadPrivateKey reads a base58 private key from the named environment
// variable.
func LoadPrivateKey(envName string) (solana.PrivateKey, error) {
	raw := strings.TrimSpace(os.Getenv(envName))
	if raw == "" {
		return nil, errors.Wrapf(ErrMissingKey, "env %s", envName)
	}
	key, err := solana.PrivateKeyFromBase58(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", envName)
	}
	return key, nil
}
