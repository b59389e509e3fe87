package cosign

import "github.com/gagliardetto/solana-go"

type TxBuilder struct {
	payer        solana.PublicKey
	blockhash    solana.Hash
	tables       []LookupTable
	instructions []solana.Instruction
}

func NewTxBuilder(payer solana.PublicKey, blockhash solana.Hash) *TxBuilder {
	return &TxBuilder{
		payer:        payer,
		blockhash:    blockhash,
		instructions: make([]solana.Instruction, 0),
	}
}

func (b *TxBuilder) AddInstruction(instrs ...solana.Instruction) *TxBuilder {
	b.instructions = append(b.instructions, instrs...)
	return b
}

func (b *TxBuilder) AddLookupTable(tables ...LookupTable) *TxBuilder {
	b.tables = append(b.tables, tables...)
	return b
}

func (b *TxBuilder) Compile() (*solana.Message, error) {
	return CompileMessage(b.payer, b.instructions, b.tables, b.blockhash)
}

// Build compiles the message and signs it with known, leaving a placeholder
// for every pending signer.
func (b *TxBuilder) Build(known []Signer, pending ...solana.PublicKey) (*solana.Transaction, error) {
	msg, err := b.Compile()
	if err != nil {
		return nil, err
	}
	return AssemblePartial(msg, known, pending)
}
