package svc

import (
	"context"

	"solana-cosign/internal/config"
	"solana-cosign/internal/cosign"
	"solana-cosign/internal/policy"
	"solana-cosign/internal/rpcs"
	"solana-cosign/internal/transport"
	"solana-cosign/internal/types"
	"solana-cosign/pkg/fifomap"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/syncx"
)

type ServiceContext struct {
	Config config.Config

	Signer    cosign.Signer
	Chain     *rpcs.Chain
	Submitter rpcs.Submitter
	Policy    *policy.Store
	Seen      *Dedupe
	Results   *fifomap.FIFOMap[string, *types.CosignResponse]
	Hub       *transport.Hub
	// Flight collapses concurrent requests for the same message id.
	Flight    syncx.SingleFlight
}

func NewServiceContext(c config.Config, signer cosign.Signer) (*ServiceContext, error) {
	store, err := policy.NewStore(c.Cosign.PolicyFile)
	if err != nil {
		return nil, err
	}

	chain := rpcs.NewChain(c.Rpc)
	submitter, err := rpcs.NewSubmitter(context.Background(), chain, c)
	if err != nil {
		return nil, err
	}

	cacheSize := c.Cosign.CacheSize
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	logx.Infof("co-signing as %s", signer.PublicKey())

	return &ServiceContext{
		Config:    c,
		Signer:    signer,
		Chain:     chain,
		Submitter: submitter,
		Policy:    store,
		Seen:      NewDedupe(c.Cosign.DedupeCapacity, c.Cosign.DedupeFalsePositive),
		Results:   fifomap.NewFIFOMap[string, *types.CosignResponse](cacheSize),
		Hub:       transport.NewHub(),
		Flight:    syncx.NewSingleFlight(),
	}, nil
}
