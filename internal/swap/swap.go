package swap

import (
	"bytes"
	"context"

	"solana-cosign/internal/ata"
	"solana-cosign/internal/client"
	"solana-cosign/internal/cosign"
	"solana-cosign/internal/rpcs"
	"solana-cosign/internal/transport"

	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/zeromicro/go-zero/core/logx"
)

// Mode selects how the swap instructions are obtained when a gas payer
// replaces the user as fee payer.
type Mode string

const (
	// ModeInstructions asks the quote api for raw instructions.
	ModeInstructions Mode = "instructions"
	// ModeRecompile asks for a ready transaction and recompiles its
	// instructions under the gas payer.
	ModeRecompile Mode = "recompile"
)

var ErrMessageChanged = errors.New("co-signer returned a different message")

type Params struct {
	InputMint      string `validate:"required"`
	OutputMint     string `validate:"required,nefield=InputMint"`
	Amount         uint64 `validate:"gt=0"`
	SlippageBps    uint16 `validate:"lte=10000"`
	PlatformFeeBps uint16 `validate:"lte=10000"`
	Mode           Mode   `validate:"omitempty,oneof=instructions recompile"`

	// User owns the swapped tokens and signs through the co-signer.
	User solana.PublicKey
	// FeeAccountOwner receives the platform fee in the output mint.
	FeeAccountOwner *solana.PublicKey
	// GasPayer pays fees and rent. Nil lets the user pay.
	GasPayer cosign.Signer
}

type Result struct {
	ID          string
	Quote       *client.QuoteResponse
	Transaction *solana.Transaction
	Signature   string
}

type Quoter interface {
	Quote(ctx context.Context, in client.QuoteRequest) (*client.QuoteResponse, error)
	Swap(ctx context.Context, in client.SwapRequest) (*client.SwapResponse, error)
	SwapInstructions(ctx context.Context, in client.SwapRequest) (*client.SwapInstructionsResponse, error)
	PriorityFee() *client.PrioritizationFeeLamports
}

type Chain interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	LookupTables(ctx context.Context, keys []solana.PublicKey) ([]cosign.LookupTable, error)
}

type Accounts interface {
	Address(ctx context.Context, owner, mint solana.PublicKey) (solana.PublicKey, solana.PublicKey, error)
	Ensure(ctx context.Context, payer cosign.Signer, owner, mint solana.PublicKey) (*ata.Result, error)
}

// Runner executes quote, build, sign and submit as one procedure.
type Runner struct {
	Quotes    Quoter
	Chain     Chain
	Accounts  Accounts
	Submitter rpcs.Submitter
	Cosigner  transport.Cosigner

	validate *validator.Validate
}

func NewRunner(quotes Quoter, chain Chain, accounts Accounts, submitter rpcs.Submitter, cosigner transport.Cosigner) *Runner {
	return &Runner{
		Quotes:    quotes,
		Chain:     chain,
		Accounts:  accounts,
		Submitter: submitter,
		Cosigner:  cosigner,
		validate:  validator.New(),
	}
}

func (r *Runner) Run(ctx context.Context, p Params) (*Result, error) {
	logger := logx.WithContext(ctx)
	if err := r.validateParams(p); err != nil {
		return nil, err
	}

	feeAccount, err := r.feeAccount(ctx, p)
	if err != nil {
		return nil, err
	}

	quote, err := r.Quotes.Quote(ctx, client.QuoteRequest{
		InputMint:                  p.InputMint,
		OutputMint:                 p.OutputMint,
		Amount:                     p.Amount,
		SlippageBps:                p.SlippageBps,
		PlatformFeeBps:             p.PlatformFeeBps,
		RestrictIntermediateTokens: true,
	})
	if err != nil {
		return nil, err
	}

	req := client.SwapRequest{
		QuoteResponse:             quote,
		UserPublicKey:             p.User.String(),
		WrapAndUnwrapSol:          true,
		FeeAccount:                feeAccount,
		DynamicComputeUnitLimit:   true,
		PrioritizationFeeLamports: r.Quotes.PriorityFee(),
	}

	var partial *solana.Transaction
	if p.GasPayer == nil || p.GasPayer.PublicKey().Equals(p.User) {
		partial, err = r.userPays(ctx, p, req)
	} else {
		partial, err = r.gasPayerPays(ctx, p, req)
	}
	if err != nil {
		return nil, err
	}

	id, err := cosign.MessageDigest(&partial.Message)
	if err != nil {
		return nil, err
	}
	logger.Infof("✅ Partial transaction %s built, pending %v", id, cosign.PendingSigners(partial))

	signed, err := r.cosign(ctx, partial)
	if err != nil {
		return nil, err
	}

	sig, err := r.Submitter.Submit(ctx, signed)
	if err != nil {
		return nil, err
	}
	logger.Infof("✅ Swap %s submitted: %s", id, sig)

	return &Result{
		ID:          id,
		Quote:       quote,
		Transaction: signed,
		Signature:   sig,
	}, nil
}

func (r *Runner) validateParams(p Params) error {
	if r.validate == nil {
		r.validate = validator.New()
	}
	if err := r.validate.Struct(p); err != nil {
		return errors.Wrap(err, "swap params")
	}
	if p.User.IsZero() {
		return errors.New("swap params: user is not set")
	}
	if p.FeeAccountOwner != nil && p.PlatformFeeBps == 0 {
		return errors.New("swap params: fee account needs a platform fee")
	}
	return nil
}

// feeAccount resolves the platform fee token account. With a gas payer the
// account is created when missing; otherwise it has to exist already.
func (r *Runner) feeAccount(ctx context.Context, p Params) (*string, error) {
	if p.FeeAccountOwner == nil {
		return nil, nil
	}
	mint, err := solana.PublicKeyFromBase58(p.OutputMint)
	if err != nil {
		return nil, errors.Wrapf(err, "output mint %q", p.OutputMint)
	}

	var address solana.PublicKey
	if p.GasPayer != nil {
		res, err := r.Accounts.Ensure(ctx, p.GasPayer, *p.FeeAccountOwner, mint)
		if err != nil {
			return nil, errors.Wrap(err, "fee account")
		}
		address = res.Address
	} else {
		address, _, err = r.Accounts.Address(ctx, *p.FeeAccountOwner, mint)
		if err != nil {
			return nil, errors.Wrap(err, "fee account")
		}
	}
	s := address.String()
	return &s, nil
}

// userPays uses the api transaction as is, unless the submitter needs a tip,
// in which case it is recompiled with the tip appended.
func (r *Runner) userPays(ctx context.Context, p Params, req client.SwapRequest) (*solana.Transaction, error) {
	resp, err := r.Quotes.Swap(ctx, req)
	if err != nil {
		return nil, err
	}
	tx, err := resp.Transaction()
	if err != nil {
		return nil, err
	}
	if len(tx.Message.AccountKeys) == 0 || !tx.Message.AccountKeys[0].Equals(p.User) {
		return nil, errors.Wrapf(cosign.ErrMalformedTransaction, "api transaction is not paid by %s", p.User)
	}

	tip := rpcs.TipFor(r.Submitter, p.User)
	if tip == nil {
		return tx, nil
	}
	ixs, tables, err := r.decompile(ctx, &tx.Message)
	if err != nil {
		return nil, err
	}
	return r.assemble(ctx, p.User, append(ixs, tip), tables, nil, p.User)
}

func (r *Runner) gasPayerPays(ctx context.Context, p Params, req client.SwapRequest) (*solana.Transaction, error) {
	var (
		ixs    []solana.Instruction
		tables []cosign.LookupTable
	)
	switch p.Mode {
	case ModeRecompile:
		resp, err := r.Quotes.Swap(ctx, req)
		if err != nil {
			return nil, err
		}
		tx, err := resp.Transaction()
		if err != nil {
			return nil, err
		}
		ixs, tables, err = r.decompile(ctx, &tx.Message)
		if err != nil {
			return nil, err
		}
	default:
		resp, err := r.Quotes.SwapInstructions(ctx, req)
		if err != nil {
			return nil, err
		}
		if ixs, err = resp.Instructions(); err != nil {
			return nil, err
		}
		keys, err := resp.LookupTableKeys()
		if err != nil {
			return nil, err
		}
		if tables, err = r.Chain.LookupTables(ctx, keys); err != nil {
			return nil, err
		}
	}

	payer := p.GasPayer.PublicKey()
	if tip := rpcs.TipFor(r.Submitter, payer); tip != nil {
		ixs = append(ixs, tip)
	}
	return r.assemble(ctx, payer, ixs, tables, []cosign.Signer{p.GasPayer}, p.User)
}

func (r *Runner) decompile(ctx context.Context, msg *solana.Message) ([]solana.Instruction, []cosign.LookupTable, error) {
	keys := make([]solana.PublicKey, 0, len(msg.AddressTableLookups))
	for _, lookup := range msg.AddressTableLookups {
		keys = append(keys, lookup.AccountKey)
	}
	var tables []cosign.LookupTable
	if len(keys) > 0 {
		var err error
		if tables, err = r.Chain.LookupTables(ctx, keys); err != nil {
			return nil, nil, err
		}
	}
	ixs, err := cosign.DecompileMessage(msg, tables)
	if err != nil {
		return nil, nil, err
	}
	return ixs, tables, nil
}

func (r *Runner) assemble(
	ctx context.Context,
	payer solana.PublicKey,
	ixs []solana.Instruction,
	tables []cosign.LookupTable,
	known []cosign.Signer,
	pending ...solana.PublicKey,
) (*solana.Transaction, error) {
	blockhash, err := r.Chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	return cosign.NewTxBuilder(payer, blockhash).
		AddInstruction(ixs...).
		AddLookupTable(tables...).
		Build(known, pending...)
}

// cosign hands partial to the co-signer and checks that what comes back is
// the same message, fully and validly signed.
func (r *Runner) cosign(ctx context.Context, partial *solana.Transaction) (*solana.Transaction, error) {
	raw, err := cosign.Serialize(partial)
	if err != nil {
		return nil, err
	}
	out, err := r.Cosigner.Cosign(ctx, raw)
	if err != nil {
		return nil, err
	}
	signed, err := cosign.Deserialize(out)
	if err != nil {
		return nil, err
	}

	want, err := cosign.MessageBytes(&partial.Message)
	if err != nil {
		return nil, err
	}
	got, err := cosign.MessageBytes(&signed.Message)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(want, got) {
		return nil, ErrMessageChanged
	}
	if !cosign.IsFullySigned(signed) {
		return nil, errors.Wrapf(cosign.ErrMalformedTransaction, "still pending %v", cosign.PendingSigners(signed))
	}
	if err := cosign.VerifySignatures(signed); err != nil {
		return nil, err
	}
	return signed, nil
}
