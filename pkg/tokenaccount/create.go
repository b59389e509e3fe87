// Copyright 2025 github.com/dwnfan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tokenaccount

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	format "github.com/gagliardetto/solana-go/text/format"
	treeout "github.com/gagliardetto/treeout"
	"github.com/pkg/errors"
)

const ProgramName = "Associated Token Account Program"

var ProgramID = solana.SPLAssociatedTokenAccountProgramID

const (
	instructionCreate           byte = 0
	instructionCreateIdempotent byte = 1
)

// Create creates the associated token account of Wallet for Mint. It works
// for both the classic token program and Token-2022.
type Create struct {
	Payer        solana.PublicKey `bin:"-" borsh_skip:"true"`
	Wallet       solana.PublicKey `bin:"-" borsh_skip:"true"`
	Mint         solana.PublicKey `bin:"-" borsh_skip:"true"`
	TokenProgram solana.PublicKey `bin:"-" borsh_skip:"true"`
	// Idempotent creation succeeds when the account already exists.
	Idempotent bool `bin:"-" borsh_skip:"true"`

	// [0] = [WRITE, SIGNER] Payer
	// [1] = [WRITE] AssociatedTokenAccount
	// [2] = [] Wallet
	// [3] = [] TokenMint
	// [4] = [] SystemProgram
	// [5] = [] TokenProgram
	solana.AccountMetaSlice `bin:"-" borsh_skip:"true"`
}

func NewCreateInstructionBuilder() *Create {
	return &Create{TokenProgram: solana.TokenProgramID}
}

// NewCreateInstruction creates the builder for payer funding the associated
// token account of wallet.
func NewCreateInstruction(
	payer solana.PublicKey,
	wallet solana.PublicKey,
	mint solana.PublicKey,
	tokenProgram solana.PublicKey,
) *Create {
	return NewCreateInstructionBuilder().
		SetPayer(payer).
		SetWallet(wallet).
		SetMint(mint).
		SetTokenProgram(tokenProgram)
}

func (inst *Create) SetPayer(payer solana.PublicKey) *Create {
	inst.Payer = payer
	return inst
}

func (inst *Create) SetWallet(wallet solana.PublicKey) *Create {
	inst.Wallet = wallet
	return inst
}

func (inst *Create) SetMint(mint solana.PublicKey) *Create {
	inst.Mint = mint
	return inst
}

func (inst *Create) SetTokenProgram(program solana.PublicKey) *Create {
	inst.TokenProgram = program
	return inst
}

func (inst *Create) SetIdempotent(idempotent bool) *Create {
	inst.Idempotent = idempotent
	return inst
}

func (inst Create) Build() *Instruction {
	associatedTokenAddress, _, _ := Address(inst.Wallet, inst.Mint, inst.TokenProgram)

	inst.AccountMetaSlice = solana.AccountMetaSlice{
		solana.Meta(inst.Payer).WRITE().SIGNER(),
		solana.Meta(associatedTokenAddress).WRITE(),
		solana.Meta(inst.Wallet),
		solana.Meta(inst.Mint),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(inst.TokenProgram),
	}

	return &Instruction{BaseVariant: bin.BaseVariant{
		Impl:   &inst,
		TypeID: bin.NoTypeIDDefaultID,
	}}
}

// ValidateAndBuild validates the instruction accounts.
// If there is a validation error, return the error.
// Otherwise, build and return the instruction.
func (inst Create) ValidateAndBuild() (*Instruction, error) {
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	return inst.Build(), nil
}

func (inst *Create) Validate() error {
	if inst.Payer.IsZero() {
		return errors.New("Payer not set")
	}
	if inst.Wallet.IsZero() {
		return errors.New("Wallet not set")
	}
	if inst.Mint.IsZero() {
		return errors.New("Mint not set")
	}
	if _, _, err := Address(inst.Wallet, inst.Mint, inst.TokenProgram); err != nil {
		return errors.Wrap(err, "derive associated token address")
	}
	return nil
}

func (inst *Create) EncodeToTree(parent treeout.Branches) {
	name := "Create"
	if inst.Idempotent {
		name = "CreateIdempotent"
	}
	parent.Child(format.Program(ProgramName, ProgramID)).
		ParentFunc(func(programBranch treeout.Branches) {
			programBranch.Child(format.Instruction(name)).
				ParentFunc(func(instructionBranch treeout.Branches) {
					instructionBranch.Child("Params[len=0]").ParentFunc(func(paramsBranch treeout.Branches) {})

					instructionBranch.Child("Accounts[len=6]").ParentFunc(func(accountsBranch treeout.Branches) {
						accountsBranch.Child(format.Meta("                 payer", inst.AccountMetaSlice.Get(0)))
						accountsBranch.Child(format.Meta("associatedTokenAddress", inst.AccountMetaSlice.Get(1)))
						accountsBranch.Child(format.Meta("                wallet", inst.AccountMetaSlice.Get(2)))
						accountsBranch.Child(format.Meta("             tokenMint", inst.AccountMetaSlice.Get(3)))
						accountsBranch.Child(format.Meta("         systemProgram", inst.AccountMetaSlice.Get(4)))
						accountsBranch.Child(format.Meta("          tokenProgram", inst.AccountMetaSlice.Get(5)))
					})
				})
		})
}

func (inst Create) MarshalWithEncoder(encoder *bin.Encoder) error {
	discriminator := instructionCreate
	if inst.Idempotent {
		discriminator = instructionCreateIdempotent
	}
	return encoder.WriteUint8(discriminator)
}

func (inst *Create) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	if decoder.Remaining() == 0 {
		return nil
	}
	discriminator, err := decoder.ReadUint8()
	if err != nil {
		return err
	}
	inst.Idempotent = discriminator == instructionCreateIdempotent
	return nil
}

func (inst Create) GetAccounts() []*solana.AccountMeta {
	return inst.AccountMetaSlice
}

type AccountMetaGettable interface {
	GetAccounts() []*solana.AccountMeta
}

type Instruction struct {
	bin.BaseVariant
}

func (inst *Instruction) ProgramID() solana.PublicKey {
	return ProgramID
}

func (inst *Instruction) Accounts() []*solana.AccountMeta {
	return inst.Impl.(AccountMetaGettable).GetAccounts()
}

func (inst *Instruction) Data() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(inst); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (inst *Instruction) EncodeToTree(parent treeout.Branches) {
	if enToTree, ok := inst.Impl.(interface{ EncodeToTree(treeout.Branches) }); ok {
		enToTree.EncodeToTree(parent)
	}
}

func (inst *Instruction) MarshalWithEncoder(encoder *bin.Encoder) error {
	return encoder.Encode(inst.Impl)
}

func (inst *Instruction) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	return decoder.Decode(inst.Impl)
}

var _ solana.Instruction = (*Instruction)(nil)
var _ bin.EncoderDecoder = (*Instruction)(nil)
