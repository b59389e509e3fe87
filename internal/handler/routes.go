package handler

import (
	"net/http"

	signing "solana-cosign/internal/handler/signing"
	"solana-cosign/internal/svc"

	"github.com/zeromicro/go-zero/rest"
)

func RegisterHandlers(server *rest.Server, serverCtx *svc.ServiceContext) {
	server.AddRoutes(
		[]rest.Route{
			{
				Method:  http.MethodGet,
				Path:    "/pubkey",
				Handler: signing.GetPubkeyHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/cosign",
				Handler: signing.CosignHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/cosign/:id",
				Handler: signing.GetCosignHandler(serverCtx),
			},
		},
		rest.WithPrefix("/v1"),
	)
}
