package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"solana-cosign/internal/config"
	"solana-cosign/internal/cosign"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

const (
	wsol = "So11111111111111111111111111111111111111112"
	usdc = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func newTestJupiter(t *testing.T, h http.HandlerFunc) *Jupiter {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewJupiter(config.JupiterConf{
		BaseURL:             srv.URL,
		Timeout:             2000,
		Attempts:            3,
		PriorityLevel:       "veryHigh",
		MaxPriorityLamports: 10000,
	})
}

func TestQuote(t *testing.T) {
	j := newTestJupiter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quote", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, wsol, q.Get("inputMint"))
		require.Equal(t, usdc, q.Get("outputMint"))
		require.Equal(t, "10000", q.Get("amount"))
		require.Equal(t, "50", q.Get("slippageBps"))
		require.Equal(t, "20", q.Get("platformFeeBps"))
		_ = json.NewEncoder(w).Encode(QuoteResponse{
			InputMint:  wsol,
			OutputMint: usdc,
			InAmount:   "10000",
			OutAmount:  "1523",
		})
	})

	quote, err := j.Quote(context.Background(), QuoteRequest{
		InputMint:      wsol,
		OutputMint:     usdc,
		Amount:         10000,
		SlippageBps:    50,
		PlatformFeeBps: 20,
	})
	require.NoError(t, err)
	out, err := quote.OutAmountUint()
	require.NoError(t, err)
	require.Equal(t, uint64(1523), out)
}

func TestQuoteValidation(t *testing.T) {
	var calls atomic.Int32
	j := newTestJupiter(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := j.Quote(context.Background(), QuoteRequest{InputMint: wsol, OutputMint: wsol, Amount: 1})
	require.Error(t, err)
	_, err = j.Quote(context.Background(), QuoteRequest{InputMint: wsol, OutputMint: usdc})
	require.Error(t, err)
	require.Zero(t, calls.Load())
}

func TestQuoteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	j := newTestJupiter(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(QuoteResponse{InputMint: wsol, OutputMint: usdc, OutAmount: "7"})
	})

	_, err := j.Quote(context.Background(), QuoteRequest{InputMint: wsol, OutputMint: usdc, Amount: 1})
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
}

func TestQuoteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	j := newTestJupiter(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad mint"}`))
	})

	_, err := j.Quote(context.Background(), QuoteRequest{InputMint: wsol, OutputMint: usdc, Amount: 1})
	require.ErrorIs(t, err, cosign.ErrTransport)
	require.Equal(t, int32(1), calls.Load())
}

func TestSwapInstructions(t *testing.T) {
	user := solana.NewWallet().PublicKey()
	table := solana.NewWallet().PublicKey()
	swapProgram := solana.NewWallet().PublicKey()
	data := []byte{1, 2, 3}

	j := newTestJupiter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/swap-instructions", r.URL.Path)
		var req SwapRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, user.String(), req.UserPublicKey)
		require.Equal(t, "veryHigh", req.PrioritizationFeeLamports.PriorityLevelWithMaxLamports.PriorityLevel)

		_ = json.NewEncoder(w).Encode(SwapInstructionsResponse{
			ComputeBudgetInstructions: []Instruction{{
				ProgramId: solana.ComputeBudget.String(),
				Data:      base64.StdEncoding.EncodeToString([]byte{2, 0, 0, 0, 0}),
			}},
			SwapInstruction: &Instruction{
				ProgramId: swapProgram.String(),
				Accounts:  []AccountMeta{{Pubkey: user.String(), IsSigner: true, IsWritable: true}},
				Data:      base64.StdEncoding.EncodeToString(data),
			},
			AddressLookupTableAddresses: []string{table.String()},
		})
	})

	resp, err := j.SwapInstructions(context.Background(), SwapRequest{
		QuoteResponse:             &QuoteResponse{InputMint: wsol, OutputMint: usdc},
		UserPublicKey:             user.String(),
		PrioritizationFeeLamports: j.PriorityFee(),
	})
	require.NoError(t, err)

	ixs, err := resp.Instructions()
	require.NoError(t, err)
	require.Len(t, ixs, 2)
	require.Equal(t, solana.ComputeBudget, ixs[0].ProgramID())
	require.Equal(t, swapProgram, ixs[1].ProgramID())
	require.Equal(t, solana.AccountMetaSlice{solana.Meta(user).WRITE().SIGNER()}, solana.AccountMetaSlice(ixs[1].Accounts()))
	got, err := ixs[1].Data()
	require.NoError(t, err)
	require.Equal(t, data, got)

	keys, err := resp.LookupTableKeys()
	require.NoError(t, err)
	require.Equal(t, []solana.PublicKey{table}, keys)
}

func TestSwapDecodesTransaction(t *testing.T) {
	payer := solana.NewWallet().PrivateKey
	tx, err := cosign.NewTxBuilder(payer.PublicKey(), solana.Hash{1}).
		AddInstruction(solana.NewInstruction(solana.MemoProgramID, solana.AccountMetaSlice{solana.Meta(payer.PublicKey()).SIGNER()}, []byte("hi"))).
		Build(nil, payer.PublicKey())
	require.NoError(t, err)
	encoded, err := cosign.EncodeBase64(tx)
	require.NoError(t, err)

	j := newTestJupiter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/swap", r.URL.Path)
		_ = json.NewEncoder(w).Encode(SwapResponse{SwapTransaction: encoded, LastValidBlockHeight: 9})
	})

	resp, err := j.Swap(context.Background(), SwapRequest{
		QuoteResponse: &QuoteResponse{InputMint: wsol, OutputMint: usdc},
		UserPublicKey: payer.PublicKey().String(),
	})
	require.NoError(t, err)
	decoded, err := resp.Transaction()
	require.NoError(t, err)
	require.True(t, cosign.Equal(tx, decoded))
}
