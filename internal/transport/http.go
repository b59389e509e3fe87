package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"solana-cosign/internal/cosign"
	"solana-cosign/internal/types"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

const (
	PubkeyPath = "/v1/pubkey"
	CosignPath = "/v1/cosign"
)

// HTTPCosigner sends partial transactions to a remote co-sign service.
type HTTPCosigner struct {
	baseURL string
	timeout time.Duration
	submit  bool
	client  *fasthttp.Client
}

func NewHTTPCosigner(baseURL string, timeout time.Duration) *HTTPCosigner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPCosigner{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  &fasthttp.Client{Name: "solana-cosign"},
	}
}

// WithSubmit asks the remote service to submit the completed transaction.
func (h *HTTPCosigner) WithSubmit(submit bool) *HTTPCosigner {
	h.submit = submit
	return h
}

// PublicKey fetches the key the remote service signs with.
func (h *HTTPCosigner) PublicKey(ctx context.Context) (solana.PublicKey, error) {
	var out types.GetPubkeyResponse
	if err := h.do(ctx, fasthttp.MethodGet, PubkeyPath, nil, &out); err != nil {
		return solana.PublicKey{}, err
	}
	key, err := solana.PublicKeyFromBase58(out.Pubkey)
	if err != nil {
		return solana.PublicKey{}, errors.Wrapf(cosign.ErrTransport, "remote pubkey %q: %v", out.Pubkey, err)
	}
	return key, nil
}

func (h *HTTPCosigner) Cosign(ctx context.Context, partial []byte) ([]byte, error) {
	tx, err := cosign.Deserialize(partial)
	if err != nil {
		return nil, err
	}
	encoded, err := cosign.EncodeBase64(tx)
	if err != nil {
		return nil, err
	}

	var out types.CosignResponse
	err = h.do(ctx, fasthttp.MethodPost, CosignPath, types.CosignRequest{
		Transaction: encoded,
		Submit:      h.submit,
	}, &out)
	if err != nil {
		return nil, err
	}

	signed, err := cosign.DecodeBase64(out.Transaction)
	if err != nil {
		return nil, errors.Wrapf(cosign.ErrTransport, "remote returned: %v", err)
	}
	return cosign.Serialize(signed)
}

func (h *HTTPCosigner) do(ctx context.Context, method, path string, body, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(h.baseURL + path)
	req.Header.SetMethod(method)
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	deadline := time.Now().Add(h.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := h.client.DoDeadline(req, resp, deadline); err != nil {
		return errors.Wrapf(cosign.ErrTransport, "%s %s: %v", method, path, err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return errors.Wrapf(cosign.ErrTransport, "%s %s: %s", method, path, statusText(code, resp.Body()))
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return errors.Wrapf(cosign.ErrTransport, "decode %s response: %v", path, err)
	}
	return nil
}

func statusText(code int, body []byte) string {
	return fmt.Sprintf("status %d: %s", code, strings.TrimSpace(string(body)))
}
