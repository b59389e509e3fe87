package signing

import (
	"net/http"

	"solana-cosign/internal/cosign"
	"solana-cosign/internal/logic/signing"
	"solana-cosign/internal/policy"

	"github.com/pkg/errors"
	"github.com/zeromicro/go-zero/rest/httpx"
)

type errorResponse struct {
	Error string `json:"error"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, signing.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, signing.ErrAlreadyCosigned):
		return http.StatusConflict
	case errors.Is(err, policy.ErrRejected):
		return http.StatusForbidden
	case errors.Is(err, cosign.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func writeError(r *http.Request, w http.ResponseWriter, err error) {
	httpx.WriteJsonCtx(r.Context(), w, statusOf(err), errorResponse{Error: err.Error()})
}
