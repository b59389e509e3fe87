package transport

import (
	"context"

	"solana-cosign/internal/cosign"

	"github.com/gagliardetto/solana-go"
	"github.com/zeromicro/go-zero/core/logx"
)

// Cosigner hands serialized partial transaction bytes to the party holding
// the missing key and returns the bytes it sends back.
type Cosigner interface {
	Cosign(ctx context.Context, partial []byte) ([]byte, error)
}

// LocalCosigner completes transactions with an in-process key.
type LocalCosigner struct {
	signer cosign.Signer
}

func NewLocalCosigner(signer cosign.Signer) *LocalCosigner {
	return &LocalCosigner{signer: signer}
}

func (l *LocalCosigner) PublicKey() solana.PublicKey {
	return l.signer.PublicKey()
}

func (l *LocalCosigner) Cosign(ctx context.Context, partial []byte) ([]byte, error) {
	tx, err := cosign.Deserialize(partial)
	if err != nil {
		return nil, err
	}
	if err := cosign.VerifySignatures(tx); err != nil {
		return nil, err
	}
	signed, err := cosign.CompleteSignature(tx, l.signer)
	if err != nil {
		return nil, err
	}
	logx.WithContext(ctx).Infof("✅ Co-signed as %s", l.signer.PublicKey())
	return cosign.Serialize(signed)
}
