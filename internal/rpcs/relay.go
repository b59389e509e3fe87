package rpcs

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"solana-cosign/internal/config"
	"solana-cosign/internal/cosign"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
	"github.com/zeromicro/go-zero/core/logx"
)

type SendTransactionJson struct {
	Id      int64  `json:"id"`
	Jsonrpc string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// RelayChannel posts signed transactions to a set of relay urls at once and
// reports success as soon as one of them accepts.
type RelayChannel struct {
	name    string
	urls    []string
	tips    []solana.PublicKey
	tip     uint64
	auth    string
	timeout time.Duration
	client  *fasthttp.Client
}

func NewRelayChannel(c config.RelayConf) (*RelayChannel, error) {
	if len(c.Urls) == 0 {
		return nil, errors.Errorf("relay %s: no urls", c.Name)
	}
	tips := make([]solana.PublicKey, 0, len(c.TipAccounts))
	for _, account := range c.TipAccounts {
		key, err := solana.PublicKeyFromBase58(account)
		if err != nil {
			return nil, errors.Wrapf(err, "relay %s tip account %q", c.Name, account)
		}
		tips = append(tips, key)
	}
	timeout := time.Duration(c.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RelayChannel{
		name:    c.Name,
		urls:    c.Urls,
		tips:    tips,
		tip:     c.TipLamports,
		auth:    c.AuthHeader,
		timeout: timeout,
		client:  &fasthttp.Client{Name: "solana-cosign"},
	}, nil
}

// TipLamports is zero when the relay has no tip accounts.
func (r *RelayChannel) TipLamports() uint64 {
	if len(r.tips) == 0 {
		return 0
	}
	return r.tip
}

func (r *RelayChannel) TipInstruction(owner solana.PublicKey, lamports uint64) solana.Instruction {
	tipPublicKey := r.tips[rand.Intn(len(r.tips))]
	return system.NewTransferInstruction(lamports, owner, tipPublicKey).Build()
}

func (r *RelayChannel) Submit(ctx context.Context, tx *solana.Transaction) (string, error) {
	if !cosign.IsFullySigned(tx) {
		return "", errors.Wrapf(cosign.ErrMalformedTransaction, "pending signers %v", cosign.PendingSigners(tx))
	}
	encoded, err := cosign.EncodeBase64(tx)
	if err != nil {
		return "", err
	}
	jsonBody, err := json.Marshal(SendTransactionJson{
		Id:      1,
		Jsonrpc: "2.0",
		Method:  "sendTransaction",
		Params: []any{
			encoded,
			map[string]any{
				"encoding":      "base64",
				"skipPreflight": true,
			},
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal sendTransaction")
	}

	deadline := time.Now().Add(r.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	// buffered so late senders never block
	resultCh := make(chan error, len(r.urls))
	for _, url := range r.urls {
		go func(url string) {
			err := r.post(url, jsonBody, deadline)
			if err != nil {
				logx.Errorf("❌[%s] %s failed: %v", r.name, url, err)
			}
			resultCh <- err
		}(url)
	}

	txSignature := tx.Signatures[0].String()
	var lastErr error
	for range r.urls {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case err := <-resultCh:
			if err == nil {
				logx.WithContext(ctx).Infof("✅[%s] tx sent: %s", r.name, txSignature)
				return txSignature, nil
			}
			lastErr = err
		}
	}
	return "", errors.Wrapf(cosign.ErrTransport, "%s: all %d urls failed, last: %v", r.name, len(r.urls), lastErr)
}

func (r *RelayChannel) post(url string, body []byte, deadline time.Time) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if r.auth != "" {
		req.Header.Set("Authorization", r.auth)
	}
	req.SetBody(body)

	if err := r.client.DoDeadline(req, resp, deadline); err != nil {
		return err
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return fmt.Errorf("status %d: %s", code, resp.Body())
	}
	var out struct {
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	if out.Error != nil {
		return fmt.Errorf("rpc error %d: %s", out.Error.Code, out.Error.Message)
	}
	return nil
}
