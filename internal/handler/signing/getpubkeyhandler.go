package signing

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"solana-cosign/internal/logic/signing"
	"solana-cosign/internal/svc"
	"solana-cosign/internal/types"
)

func GetPubkeyHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.GetPubkeyRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}

		l := signing.NewGetPubkeyLogic(r.Context(), svcCtx)
		resp, err := l.GetPubkey(&req)
		if err != nil {
			writeError(r, w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}
