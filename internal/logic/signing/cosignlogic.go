package signing

import (
	"context"
	"time"

	"solana-cosign/internal/cosign"
	"solana-cosign/internal/svc"
	"solana-cosign/internal/transport"
	"solana-cosign/internal/types"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/zeromicro/go-zero/core/logx"
)

type CosignLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewCosignLogic(ctx context.Context, svcCtx *svc.ServiceContext) *CosignLogic {
	return &CosignLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// Cosign fills the service key's slot in a partial transaction. Repeating a
// request for a message still in the result cache returns the cached result.
// Concurrent requests for one message share a single signing and submission.
func (l *CosignLogic) Cosign(req *types.CosignRequest) (*types.CosignResponse, error) {
	tx, err := cosign.DecodeBase64(req.Transaction)
	if err != nil {
		return nil, err
	}
	id, err := cosign.MessageDigest(&tx.Message)
	if err != nil {
		return nil, err
	}

	val, fresh, err := l.svcCtx.Flight.DoEx(id, func() (any, error) {
		return l.cosign(id, tx, req.Submit)
	})
	if err != nil {
		return nil, err
	}
	if !fresh {
		l.Infof("joined in-flight co-sign of %s", id)
	}
	return val.(*types.CosignResponse), nil
}

func (l *CosignLogic) cosign(id string, tx *solana.Transaction, submit bool) (*types.CosignResponse, error) {
	if cached, ok := l.svcCtx.Results.Get(id); ok {
		l.Infof("returning cached result for %s", id)
		return cached, nil
	}
	if l.svcCtx.Seen.Seen(id) {
		return nil, errors.Wrapf(ErrAlreadyCosigned, "%s", id)
	}

	if err := l.svcCtx.Policy.Check(&tx.Message); err != nil {
		l.Errorf("❌ %s: %v", id, err)
		return nil, err
	}
	if err := cosign.VerifySignatures(tx); err != nil {
		return nil, err
	}
	signed, err := cosign.CompleteSignature(tx, l.svcCtx.Signer)
	if err != nil {
		return nil, err
	}
	encoded, err := cosign.EncodeBase64(signed)
	if err != nil {
		return nil, err
	}

	pending := cosign.PendingSigners(signed)
	resp := &types.CosignResponse{
		Id:          id,
		Transaction: encoded,
		Pending:     make([]string, 0, len(pending)),
	}
	for _, key := range pending {
		resp.Pending = append(resp.Pending, key.String())
	}

	if (submit || l.svcCtx.Config.Cosign.Submit) && len(pending) == 0 {
		sig, err := l.svcCtx.Submitter.Submit(l.ctx, signed)
		if err != nil {
			return nil, err
		}
		resp.Submitted = true
		resp.Signature = sig
	}

	l.svcCtx.Seen.Add(id)
	if !l.svcCtx.Results.SetIfAbsent(id, resp) {
		cached, _ := l.svcCtx.Results.Get(id)
		return cached, nil
	}
	l.svcCtx.Hub.Publish(transport.Event{
		Time:      time.Now(),
		ID:        id,
		Payer:     signed.Message.AccountKeys[0].String(),
		Signature: resp.Signature,
		Submitted: resp.Submitted,
	})
	l.Infof("✅ Co-signed %s, pending %d", id, len(pending))
	return resp, nil
}
