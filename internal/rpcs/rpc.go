package rpcs

import (
	"context"
	"time"

	"solana-cosign/internal/config"
	"solana-cosign/internal/cosign"

	"github.com/gagliardetto/solana-go"
	addresslookuptable "github.com/gagliardetto/solana-go/programs/address-lookup-table"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/sync/errgroup"
)

var ErrAccountNotFound = errors.New("account not found")

// Submitter delivers a fully signed transaction to the network.
type Submitter interface {
	Submit(ctx context.Context, tx *solana.Transaction) (string, error)
}

// Tipper is implemented by submitters that expect a tip transfer inside the
// signed message.
type Tipper interface {
	TipInstruction(owner solana.PublicKey, lamports uint64) solana.Instruction
	TipLamports() uint64
}

// TipFor returns the tip instruction s expects from payer, or nil.
func TipFor(s Submitter, payer solana.PublicKey) solana.Instruction {
	tipper, ok := s.(Tipper)
	if !ok || tipper.TipLamports() == 0 {
		return nil
	}
	return tipper.TipInstruction(payer, tipper.TipLamports())
}

// Chain is the subset of the JSON-RPC api the signing flows rely on.
type Chain struct {
	client     *rpc.Client
	commitment rpc.CommitmentType
	opts       rpc.TransactionOpts
}

func NewChain(c config.RpcConf) *Chain {
	return NewChainWithClient(rpc.New(c.Endpoint), c)
}

func NewChainWithClient(client *rpc.Client, c config.RpcConf) *Chain {
	commitment := rpc.CommitmentType(c.Commitment)
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	maxRetries := c.MaxRetries
	return &Chain{
		client:     client,
		commitment: commitment,
		opts: rpc.TransactionOpts{
			SkipPreflight:       c.SkipPreflight,
			PreflightCommitment: commitment,
			MaxRetries:          &maxRetries,
		},
	}
}

func (c *Chain) Client() *rpc.Client {
	return c.client
}

func (c *Chain) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := c.client.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Hash{}, transportErr(err, "getLatestBlockhash")
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, errors.Wrap(cosign.ErrTransport, "getLatestBlockhash: empty result")
	}
	return out.Value.Blockhash, nil
}

// SendTransaction submits serialized transaction bytes, base64 encoded on the wire.
func (c *Chain) SendTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	sig, err := c.client.SendRawTransactionWithOpts(ctx, raw, c.opts)
	if err != nil {
		return solana.Signature{}, transportErr(err, "sendTransaction")
	}
	return sig, nil
}

func (c *Chain) account(ctx context.Context, key solana.PublicKey) (*rpc.Account, error) {
	out, err := c.client.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{Commitment: c.commitment})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, errors.Wrapf(ErrAccountNotFound, "%s", key)
	}
	if err != nil {
		return nil, transportErr(err, "getAccountInfo")
	}
	if out == nil || out.Value == nil {
		return nil, errors.Wrapf(ErrAccountNotFound, "%s", key)
	}
	return out.Value, nil
}

func (c *Chain) AccountExists(ctx context.Context, key solana.PublicKey) (bool, error) {
	_, err := c.account(ctx, key)
	if errors.Is(err, ErrAccountNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (c *Chain) AccountOwner(ctx context.Context, key solana.PublicKey) (solana.PublicKey, error) {
	acc, err := c.account(ctx, key)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return acc.Owner, nil
}

// LookupTables fetches and decodes address lookup tables, preserving the
// order of keys.
func (c *Chain) LookupTables(ctx context.Context, keys []solana.PublicKey) ([]cosign.LookupTable, error) {
	tables := make([]cosign.LookupTable, len(keys))
	g, ctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		g.Go(func() error {
			acc, err := c.account(ctx, key)
			if err != nil {
				return err
			}
			state, err := addresslookuptable.DecodeAddressLookupTableState(acc.Data.GetBinary())
			if err != nil {
				return errors.Wrapf(err, "decode lookup table %s", key)
			}
			tables[i] = cosign.LookupTable{Key: key, Addresses: state.Addresses}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}

func (c *Chain) GetTransaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	maxSupportedTransactionVersion := uint64(0)
	out, err := c.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     c.commitment,
		MaxSupportedTransactionVersion: &maxSupportedTransactionVersion,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, errors.Wrapf(ErrAccountNotFound, "transaction %s", sig)
	}
	if err != nil {
		return nil, transportErr(err, "getTransaction")
	}
	if out == nil || out.Transaction == nil {
		return nil, errors.Wrapf(ErrAccountNotFound, "transaction %s", sig)
	}
	return out, nil
}

// TransactionSender returns the fee payer of a confirmed transaction.
func (c *Chain) TransactionSender(ctx context.Context, sig solana.Signature) (solana.PublicKey, error) {
	out, err := c.GetTransaction(ctx, sig)
	if err != nil {
		return solana.PublicKey{}, err
	}
	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return solana.PublicKey{}, errors.Wrapf(cosign.ErrMalformedTransaction, "%v", err)
	}
	if len(tx.Message.AccountKeys) == 0 {
		return solana.PublicKey{}, errors.Wrap(cosign.ErrMalformedTransaction, "transaction has no account keys")
	}
	return tx.Message.AccountKeys[0], nil
}

// WaitForTransaction polls until sig is visible at the configured commitment.
func (c *Chain) WaitForTransaction(ctx context.Context, sig solana.Signature, every time.Duration) (*rpc.GetTransactionResult, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		out, err := c.GetTransaction(ctx, sig)
		switch {
		case err == nil && out.Meta != nil && out.Meta.Err != nil:
			return out, errors.Errorf("transaction %s failed: %v", sig, out.Meta.Err)
		case err == nil:
			return out, nil
		case !errors.Is(err, ErrAccountNotFound):
			logx.WithContext(ctx).Errorf("poll %s: %v", sig, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func transportErr(err error, method string) error {
	return errors.Wrapf(cosign.ErrTransport, "%s: %v", method, err)
}

// NewSubmitter picks the Jito block engine when enabled, then the relay, and
// the RPC node otherwise.
func NewSubmitter(ctx context.Context, chain *Chain, c config.Config) (Submitter, error) {
	switch {
	case c.Jito.Enable:
		return NewJitoChannel(ctx, c.Jito, c.Rpc.Endpoint)
	case c.Relay.Enable:
		return NewRelayChannel(c.Relay)
	default:
		return NewRpcChannel(chain), nil
	}
}

// RpcChannel submits through the configured JSON-RPC endpoint.
type RpcChannel struct {
	chain *Chain
}

func NewRpcChannel(chain *Chain) *RpcChannel {
	return &RpcChannel{chain: chain}
}

func (r *RpcChannel) Submit(ctx context.Context, tx *solana.Transaction) (string, error) {
	if !cosign.IsFullySigned(tx) {
		return "", errors.Wrapf(cosign.ErrMalformedTransaction, "pending signers %v", cosign.PendingSigners(tx))
	}
	raw, err := cosign.Serialize(tx)
	if err != nil {
		return "", err
	}
	sig, err := r.chain.SendTransaction(ctx, raw)
	if err != nil {
		logx.WithContext(ctx).Errorf("❌[rpc] send err:%v", err)
		return "", err
	}
	logx.WithContext(ctx).Infof("✅[rpc] tx sent: %s", sig)
	return sig.String(), nil
}
