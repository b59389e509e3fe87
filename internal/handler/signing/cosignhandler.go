package signing

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"solana-cosign/internal/logic/signing"
	"solana-cosign/internal/svc"
	"solana-cosign/internal/types"
)

func CosignHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.CosignRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}

		l := signing.NewCosignLogic(r.Context(), svcCtx)
		resp, err := l.Cosign(&req)
		if err != nil {
			writeError(r, w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}
