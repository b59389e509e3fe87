package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"solana-cosign/internal/config"
	"solana-cosign/internal/cosign"

	"github.com/avast/retry-go"
	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/valyala/fasthttp"
	"github.com/zeromicro/go-zero/core/logx"
)

// 交易路径
type RoutePlan struct {
	SwapInfo SwapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
	Bps      int      `json:"bps"`
}

// 交换信息
type SwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	FeeAmount  string `json:"feeAmount"`
	FeeMint    string `json:"feeMint"`
}

type PlatformFee struct {
	Amount string `json:"amount"`
	FeeBps int    `json:"feeBps"`
}

type QuoteRequest struct {
	InputMint                  string `validate:"required"`
	OutputMint                 string `validate:"required,nefield=InputMint"`
	Amount                     uint64 `validate:"gt=0"`
	SlippageBps                uint16 `validate:"lte=10000"`
	PlatformFeeBps             uint16 `validate:"lte=10000"`
	RestrictIntermediateTokens bool
	MaxAccounts                int `validate:"gte=0,lte=64"`
}

type QuoteResponse struct {
	Error                string       `json:"error,omitempty"`
	InputMint            string       `json:"inputMint"`
	OutputMint           string       `json:"outputMint"`
	InAmount             string       `json:"inAmount"`
	OutAmount            string       `json:"outAmount"`
	OtherAmountThreshold string       `json:"otherAmountThreshold"`
	SwapMode             string       `json:"swapMode"`
	SlippageBps          int          `json:"slippageBps"`
	PlatformFee          *PlatformFee `json:"platformFee,omitempty"`
	PriceImpactPct       string       `json:"priceImpactPct"`
	RoutePlan            []RoutePlan  `json:"routePlan"`
	ContextSlot          uint64       `json:"contextSlot,omitempty"`
}

func (q *QuoteResponse) OutAmountUint() (uint64, error) {
	return cast.ToUint64E(q.OutAmount)
}

func (q *QuoteResponse) InAmountUint() (uint64, error) {
	return cast.ToUint64E(q.InAmount)
}

type SwapRequest struct {
	QuoteResponse                 *QuoteResponse             `json:"quoteResponse" validate:"required"`
	UserPublicKey                 string                     `json:"userPublicKey" validate:"required"`
	WrapAndUnwrapSol              bool                       `json:"wrapAndUnwrapSol,omitempty"`
	FeeAccount                    *string                    `json:"feeAccount,omitempty"` // 可能为空
	TrackingAccount               *string                    `json:"trackingAccount,omitempty"`
	AsLegacyTransaction           bool                       `json:"asLegacyTransaction,omitempty"`
	DestinationTokenAccount       *string                    `json:"destinationTokenAccount,omitempty"`
	DynamicComputeUnitLimit       bool                       `json:"dynamicComputeUnitLimit,omitempty"`
	SkipUserAccountsRpcCalls      bool                       `json:"skipUserAccountsRpcCalls,omitempty"`
	DynamicSlippage               bool                       `json:"dynamicSlippage,omitempty"`
	ComputeUnitPriceMicroLamports int64                      `json:"computeUnitPriceMicroLamports,omitempty"`
	PrioritizationFeeLamports     *PrioritizationFeeLamports `json:"prioritizationFeeLamports,omitempty"`
	UseSharedAccounts             bool                       `json:"useSharedAccounts"`
}

type AccountMeta struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

type Instruction struct {
	ProgramId string        `json:"programId"`
	Accounts  []AccountMeta `json:"accounts"`
	Data      string        `json:"data"`
}

// Build converts the api representation into a solana instruction.
func (i *Instruction) Build() (solana.Instruction, error) {
	programID, err := solana.PublicKeyFromBase58(i.ProgramId)
	if err != nil {
		return nil, errors.Wrapf(err, "program id %q", i.ProgramId)
	}
	accounts := make(solana.AccountMetaSlice, 0, len(i.Accounts))
	for _, acc := range i.Accounts {
		key, err := solana.PublicKeyFromBase58(acc.Pubkey)
		if err != nil {
			return nil, errors.Wrapf(err, "account %q", acc.Pubkey)
		}
		accounts = append(accounts, solana.NewAccountMeta(key, acc.IsWritable, acc.IsSigner))
	}
	data, err := base64.StdEncoding.DecodeString(i.Data)
	if err != nil {
		return nil, errors.Wrap(err, "instruction data")
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

type SwapInstructionsResponse struct {
	Error                  string       `json:"error,omitempty"`
	TokenLedgerInstruction *Instruction `json:"tokenLedgerInstruction,omitempty"`
	// The necessary instructions to setup the compute budget.
	ComputeBudgetInstructions []Instruction `json:"computeBudgetInstructions"`
	// Setup missing ATA for the users.
	SetupInstructions  []Instruction `json:"setupInstructions"`
	SwapInstruction    *Instruction  `json:"swapInstruction"`
	CleanupInstruction *Instruction  `json:"cleanupInstruction,omitempty"`
	// The lookup table addresses that you can use if you are using versioned transaction.
	AddressLookupTableAddresses []string `json:"addressLookupTableAddresses"`
}

// Instructions returns compute budget, setup, swap and cleanup instructions
// in execution order.
func (r *SwapInstructionsResponse) Instructions() ([]solana.Instruction, error) {
	if r.SwapInstruction == nil {
		return nil, errors.Wrap(cosign.ErrTransport, "response has no swap instruction")
	}
	all := make([]*Instruction, 0, len(r.ComputeBudgetInstructions)+len(r.SetupInstructions)+2)
	for i := range r.ComputeBudgetInstructions {
		all = append(all, &r.ComputeBudgetInstructions[i])
	}
	for i := range r.SetupInstructions {
		all = append(all, &r.SetupInstructions[i])
	}
	all = append(all, r.SwapInstruction)
	if r.CleanupInstruction != nil {
		all = append(all, r.CleanupInstruction)
	}

	out := make([]solana.Instruction, 0, len(all))
	for n, ix := range all {
		built, err := ix.Build()
		if err != nil {
			return nil, errors.Wrapf(err, "instruction %d", n)
		}
		out = append(out, built)
	}
	return out, nil
}

func (r *SwapInstructionsResponse) LookupTableKeys() ([]solana.PublicKey, error) {
	keys := make([]solana.PublicKey, 0, len(r.AddressLookupTableAddresses))
	for _, s := range r.AddressLookupTableAddresses {
		key, err := solana.PublicKeyFromBase58(s)
		if err != nil {
			return nil, errors.Wrapf(err, "lookup table %q", s)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

type PrioritizationFeeLamports struct {
	PriorityLevelWithMaxLamports *PriorityLevelWithMaxLamports `json:"priorityLevelWithMaxLamports,omitempty"`
	JitoTipLamports              int32                         `json:"jitoTipLamports,omitempty"`
}

type PriorityLevelWithMaxLamports struct {
	MaxLamports   uint64 `json:"maxLamports,omitempty"`
	Global        bool   `json:"global"`
	PriorityLevel string `json:"priorityLevel,omitempty"`
}

type SwapResponse struct {
	Error                string `json:"error,omitempty"`
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight int    `json:"lastValidBlockHeight"`
}

// Transaction decodes the returned base64 transaction.
func (r *SwapResponse) Transaction() (*solana.Transaction, error) {
	return cosign.DecodeBase64(r.SwapTransaction)
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

// Jupiter is a client for the Jupiter swap v1 api.
type Jupiter struct {
	conf     config.JupiterConf
	client   *fasthttp.Client
	validate *validator.Validate
}

func NewJupiter(c config.JupiterConf) *Jupiter {
	return &Jupiter{
		conf:     c,
		client:   &fasthttp.Client{Name: "solana-cosign"},
		validate: validator.New(),
	}
}

func (j *Jupiter) timeout() time.Duration {
	if j.conf.Timeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(j.conf.Timeout) * time.Millisecond
}

// https://api.jup.ag/swap/v1/quote?inputMint=So11111111111111111111111111111111111111112&outputMint=EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v&amount=100000000&slippageBps=50&restrictIntermediateTokens=true
func (j *Jupiter) Quote(ctx context.Context, in QuoteRequest) (*QuoteResponse, error) {
	if err := j.validate.Struct(in); err != nil {
		return nil, errors.Wrap(err, "quote request")
	}

	params := url.Values{}
	params.Set("inputMint", in.InputMint)
	params.Set("outputMint", in.OutputMint)
	params.Set("amount", strconv.FormatUint(in.Amount, 10))
	params.Set("slippageBps", strconv.Itoa(int(in.SlippageBps)))
	params.Set("restrictIntermediateTokens", strconv.FormatBool(in.RestrictIntermediateTokens))
	if in.PlatformFeeBps > 0 {
		params.Set("platformFeeBps", strconv.Itoa(int(in.PlatformFeeBps)))
	}
	if in.MaxAccounts > 0 {
		params.Set("maxAccounts", strconv.Itoa(in.MaxAccounts))
	}

	var quote QuoteResponse
	if err := j.call(ctx, fasthttp.MethodGet, "/quote?"+params.Encode(), nil, &quote); err != nil {
		return nil, err
	}
	if quote.Error != "" {
		return nil, errors.Wrapf(cosign.ErrTransport, "quote: %s", quote.Error)
	}
	logx.WithContext(ctx).Infof("✅ Quote received: %s %s -> %s %s", quote.InAmount, quote.InputMint, quote.OutAmount, quote.OutputMint)
	return &quote, nil
}

// PriorityFee is the prioritization setting derived from config.
func (j *Jupiter) PriorityFee() *PrioritizationFeeLamports {
	return &PrioritizationFeeLamports{
		PriorityLevelWithMaxLamports: &PriorityLevelWithMaxLamports{
			MaxLamports:   j.conf.MaxPriorityLamports,
			Global:        false,
			PriorityLevel: j.conf.PriorityLevel,
		},
	}
}

func (j *Jupiter) Swap(ctx context.Context, in SwapRequest) (*SwapResponse, error) {
	if err := j.validate.Struct(in); err != nil {
		return nil, errors.Wrap(err, "swap request")
	}
	var out SwapResponse
	if err := j.call(ctx, fasthttp.MethodPost, "/swap", in, &out); err != nil {
		return nil, err
	}
	if out.Error != "" || out.SwapTransaction == "" {
		return nil, errors.Wrapf(cosign.ErrTransport, "swap: %s", out.Error)
	}
	logx.WithContext(ctx).Infof("✅ Swap created, valid until block %d", out.LastValidBlockHeight)
	return &out, nil
}

func (j *Jupiter) SwapInstructions(ctx context.Context, in SwapRequest) (*SwapInstructionsResponse, error) {
	if err := j.validate.Struct(in); err != nil {
		return nil, errors.Wrap(err, "swap request")
	}
	var out SwapInstructionsResponse
	if err := j.call(ctx, fasthttp.MethodPost, "/swap-instructions", in, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, errors.Wrapf(cosign.ErrTransport, "swap-instructions: %s", out.Error)
	}
	logx.WithContext(ctx).Infof("✅ Swap instructions received, %d lookup tables", len(out.AddressLookupTableAddresses))
	return &out, nil
}

// call performs one api request, retrying network failures and 5xx
// responses. 4xx responses are returned immediately.
func (j *Jupiter) call(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return errors.Wrap(err, "marshal request")
		}
	}
	uri := strings.TrimRight(j.conf.BaseURL, "/") + path

	attempts := j.conf.Attempts
	if attempts == 0 {
		attempts = 1
	}
	err := retry.Do(func() error {
		return j.do(ctx, method, uri, payload, out)
	},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if !retry.IsRecoverable(err) {
				return false
			}
			var se *statusError
			if errors.As(err, &se) {
				return se.code >= fasthttp.StatusInternalServerError || se.code == fasthttp.StatusTooManyRequests
			}
			return true
		}),
		retry.OnRetry(func(n uint, err error) {
			logx.WithContext(ctx).Errorf("[jupiter] %s %s attempt %d: %v", method, path, n+1, err)
		}),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			return retry.BackOffDelay(n, err, config)
		}),
	)
	if err != nil {
		return errors.Wrapf(cosign.ErrTransport, "%s %s: %v", method, path, err)
	}
	return nil
}

func (j *Jupiter) do(ctx context.Context, method, uri string, payload []byte, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	if payload != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	deadline := time.Now().Add(j.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := j.client.DoDeadline(req, resp, deadline); err != nil {
		return err
	}

	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return &statusError{code: code, body: string(resp.Body())}
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return retry.Unrecoverable(errors.Wrap(err, "decode response"))
	}
	return nil
}
