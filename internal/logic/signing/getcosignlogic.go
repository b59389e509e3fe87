package signing

import (
	"context"

	"solana-cosign/internal/svc"
	"solana-cosign/internal/types"

	"github.com/pkg/errors"
	"github.com/zeromicro/go-zero/core/logx"
)

type GetCosignLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewGetCosignLogic(ctx context.Context, svcCtx *svc.ServiceContext) *GetCosignLogic {
	return &GetCosignLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *GetCosignLogic) GetCosign(req *types.GetCosignRequest) (*types.CosignResponse, error) {
	resp, ok := l.svcCtx.Results.Get(req.Id)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s", req.Id)
	}
	return resp, nil
}
