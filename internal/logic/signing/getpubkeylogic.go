package signing

import (
	"context"

	"solana-cosign/internal/svc"
	"solana-cosign/internal/types"

	"github.com/zeromicro/go-zero/core/logx"
)

type GetPubkeyLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewGetPubkeyLogic(ctx context.Context, svcCtx *svc.ServiceContext) *GetPubkeyLogic {
	return &GetPubkeyLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *GetPubkeyLogic) GetPubkey(req *types.GetPubkeyRequest) (*types.GetPubkeyResponse, error) {
	return &types.GetPubkeyResponse{Pubkey: l.svcCtx.Signer.PublicKey().String()}, nil
}
