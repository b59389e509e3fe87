package rpcs

import (
	"context"
	"math/rand"
	"time"

	"solana-cosign/internal/config"
	"solana-cosign/internal/cosign"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"

	jito_go "github.com/weeaa/jito-go"
	"github.com/weeaa/jito-go/clients/searcher_client"
	"github.com/zeromicro/go-zero/core/logx"
)

var (
	jitoName = "Jito"
	rpcAddr  = "https://mainnet.block-engine.jito.wtf"
)

// JitoChannel broadcasts single-transaction bundles to the block engine.
// The tip transfer has to be part of the signed message, so callers add
// TipInstruction before compiling.
type JitoChannel struct {
	engines []bundleSender
	tip     uint64
}

// bundleSender broadcasts a bundle to one block engine and waits for it to land.
type bundleSender func(ctx context.Context, txns []*solana.Transaction) error

func NewJitoChannel(ctx context.Context, c config.JitoConf, rpcEndpoint string) (*JitoChannel, error) {
	engines := []bundleSender{}

	for k, v := range jito_go.JitoEndpoints {
		if k != c.Region {
			continue
		}
		client, err := searcher_client.NewNoAuth(
			ctx,
			v.BlockEngineURL,
			rpc.New(rpcAddr),
			rpc.New(rpcEndpoint),
			"",
			nil,
		)
		if err != nil {
			logx.Errorf("create %s client for %s: %v", jitoName, k, err)
			continue
		}
		engines = append(engines, func(ctx context.Context, txns []*solana.Transaction) error {
			_, err := client.BroadcastBundleWithConfirmation(ctx, txns)
			return err
		})
	}
	if len(engines) == 0 {
		return nil, errors.Wrapf(cosign.ErrTransport, "no %s block engine for region %q", jitoName, c.Region)
	}

	return &JitoChannel{
		engines: engines,
		tip:     c.TipLamports,
	}, nil
}

func (c *JitoChannel) TipLamports() uint64 {
	return c.tip
}

func (c *JitoChannel) TipInstruction(owner solana.PublicKey, lamports uint64) solana.Instruction {
	return TipInstruction(owner, lamports)
}

func TipInstruction(owner solana.PublicKey, lamports uint64) solana.Instruction {
	randomIndex := rand.Intn(len(jito_go.MainnetTipAccounts))
	tipPublicKey := jito_go.MainnetTipAccounts[randomIndex]

	return system.NewTransferInstruction(lamports, owner, tipPublicKey).Build()
}

func (c *JitoChannel) Submit(ctx context.Context, tx *solana.Transaction) (string, error) {
	if !cosign.IsFullySigned(tx) {
		return "", errors.Wrapf(cosign.ErrMalformedTransaction, "pending signers %v", cosign.PendingSigners(tx))
	}
	txSignature := tx.Signatures[0].String()
	txns := []*solana.Transaction{tx}

	// buffered so engines answering after the first success never block
	resultCh := make(chan error, len(c.engines))
	for _, send := range c.engines {
		go func(send bundleSender) {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 8*time.Second)
			defer cancel()
			err := send(ctx, txns)
			if err != nil {
				logx.Errorf("❌[%s] send err:%v", jitoName, err)
			}
			resultCh <- err
		}(send)
	}

	var lastErr error
	for range c.engines {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case err := <-resultCh:
			if err == nil {
				logx.WithContext(ctx).Infof("✅[%s] tx sent: %s", jitoName, txSignature)
				return txSignature, nil
			}
			lastErr = err
		}
	}
	return "", errors.Wrapf(cosign.ErrTransport, "%s: all %d block engines failed, last: %v", jitoName, len(c.engines), lastErr)
}
