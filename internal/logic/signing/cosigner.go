package signing

import (
	"context"
	"encoding/base64"

	"solana-cosign/internal/svc"
	"solana-cosign/internal/transport"
	"solana-cosign/internal/types"

	"github.com/pkg/errors"
)

// Cosigner runs raw partial transactions through the same checks as the
// http endpoint, for transports that deliver bytes directly.
type Cosigner struct {
	svcCtx *svc.ServiceContext
	submit bool
}

func NewCosigner(svcCtx *svc.ServiceContext, submit bool) *Cosigner {
	return &Cosigner{svcCtx: svcCtx, submit: submit}
}

var _ transport.Cosigner = (*Cosigner)(nil)

func (c *Cosigner) Cosign(ctx context.Context, partial []byte) ([]byte, error) {
	resp, err := NewCosignLogic(ctx, c.svcCtx).Cosign(&types.CosignRequest{
		Transaction: base64.StdEncoding.EncodeToString(partial),
		Submit:      c.submit,
	})
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Transaction)
	if err != nil {
		return nil, errors.Wrap(err, "decode co-signed transaction")
	}
	return raw, nil
}
