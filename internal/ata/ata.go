package ata

import (
	"context"
	"time"

	"solana-cosign/internal/cosign"
	"solana-cosign/internal/rpcs"
	"solana-cosign/pkg/tokenaccount"

	"github.com/avast/retry-go"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/zeromicro/go-zero/core/logx"
)

var ErrNotConfirmed = errors.New("token account not visible after creation")

type Chain interface {
	AccountExists(ctx context.Context, key solana.PublicKey) (bool, error)
	AccountOwner(ctx context.Context, key solana.PublicKey) (solana.PublicKey, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
}

type Result struct {
	Address      solana.PublicKey
	TokenProgram solana.PublicKey
	Created      bool
	Signature    string
}

// Creator makes sure associated token accounts exist, paying for missing ones.
type Creator struct {
	chain     Chain
	submitter rpcs.Submitter

	Attempts uint
	Delay    time.Duration
}

func NewCreator(chain Chain, submitter rpcs.Submitter) *Creator {
	return &Creator{
		chain:     chain,
		submitter: submitter,
		Attempts:  20,
		Delay:     time.Second,
	}
}

// Address resolves the token program owning mint and derives owner's
// associated token account for it.
func (c *Creator) Address(ctx context.Context, owner, mint solana.PublicKey) (solana.PublicKey, solana.PublicKey, error) {
	program, err := c.chain.AccountOwner(ctx, mint)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, errors.Wrapf(err, "mint %s", mint)
	}
	address, _, err := tokenaccount.Address(owner, mint, program)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	return address, program, nil
}

// Ensure returns owner's associated token account for mint, creating it with
// payer funding the rent when it does not exist yet.
func (c *Creator) Ensure(ctx context.Context, payer cosign.Signer, owner, mint solana.PublicKey) (*Result, error) {
	logger := logx.WithContext(ctx)

	address, program, err := c.Address(ctx, owner, mint)
	if err != nil {
		return nil, err
	}
	res := &Result{Address: address, TokenProgram: program}

	exists, err := c.chain.AccountExists(ctx, address)
	if err != nil {
		return nil, err
	}
	if exists {
		logger.Infof("✅ Token account %s already exists", address)
		return res, nil
	}

	blockhash, err := c.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	builder := cosign.NewTxBuilder(payer.PublicKey(), blockhash).
		AddInstruction(tokenaccount.NewCreateInstruction(payer.PublicKey(), owner, mint, program).SetIdempotent(true).Build())
	if tip := rpcs.TipFor(c.submitter, payer.PublicKey()); tip != nil {
		builder.AddInstruction(tip)
	}
	tx, err := builder.Build([]cosign.Signer{payer})
	if err != nil {
		return nil, err
	}

	res.Signature, err = c.submitter.Submit(ctx, tx)
	if err != nil {
		return nil, err
	}
	res.Created = true
	logger.Infof("✅ Token account %s creation sent: %s", address, res.Signature)

	err = retry.Do(func() error {
		ok, err := c.chain.AccountExists(ctx, address)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotConfirmed
		}
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(c.Attempts),
		retry.Delay(c.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return res, errors.Wrapf(err, "wait for %s", address)
	}
	logger.Infof("✅ Token account %s confirmed", address)
	return res, nil
}
