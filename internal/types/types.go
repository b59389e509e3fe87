package types

type GetPubkeyRequest struct {
}

type GetPubkeyResponse struct {
	Pubkey string `json:"pubkey"`
}

type CosignRequest struct {
	Transaction string `json:"transaction"`
	Submit      bool   `json:"submit,optional"`
}

type CosignResponse struct {
	Id          string   `json:"id"`
	Transaction string   `json:"transaction"`
	Pending     []string `json:"pending"`
	Submitted   bool     `json:"submitted"`
	Signature   string   `json:"signature,omitempty"`
}

type GetCosignRequest struct {
	Id string `path:"id"`
}
