package cosign

import "github.com/gagliardetto/solana-go"

type Slot struct {
	Index  int    `yaml:"index" json:"index"`
	Signer string `yaml:"signer" json:"signer"`
	Signed bool   `yaml:"signed" json:"signed"`
}

// Report summarizes a transaction's signing state.
type Report struct {
	ID              string   `yaml:"id" json:"id"`
	Version         string   `yaml:"version" json:"version"`
	Payer           string   `yaml:"payer" json:"payer"`
	Blockhash       string   `yaml:"blockhash" json:"blockhash"`
	Size            int      `yaml:"size" json:"size"`
	Slots           []Slot   `yaml:"slots" json:"slots"`
	Placeholders    []int    `yaml:"placeholders" json:"placeholders"`
	FullySigned     bool     `yaml:"fully_signed" json:"fullySigned"`
	SignaturesValid bool     `yaml:"signatures_valid" json:"signaturesValid"`
	Programs        []string `yaml:"programs" json:"programs"`
	LookupTables    []string `yaml:"lookup_tables,omitempty" json:"lookupTables,omitempty"`
}

func Describe(tx *solana.Transaction) (*Report, error) {
	raw, err := Serialize(tx)
	if err != nil {
		return nil, err
	}
	id, err := MessageDigest(&tx.Message)
	if err != nil {
		return nil, err
	}
	required, err := RequiredSigners(&tx.Message)
	if err != nil {
		return nil, err
	}

	r := &Report{
		ID:              id,
		Version:         "legacy",
		Blockhash:       tx.Message.RecentBlockhash.String(),
		Size:            len(raw),
		Placeholders:    Placeholders(tx),
		FullySigned:     IsFullySigned(tx),
		SignaturesValid: VerifySignatures(tx) == nil,
	}
	if tx.Message.IsVersioned() {
		r.Version = "v0"
	}
	if len(required) > 0 {
		r.Payer = required[0].String()
	}
	for i, key := range required {
		r.Slots = append(r.Slots, Slot{Index: i, Signer: key.String(), Signed: !IsPlaceholder(tx.Signatures[i])})
	}

	seen := make(map[solana.PublicKey]struct{})
	for _, ix := range tx.Message.Instructions {
		if int(ix.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			continue
		}
		program := tx.Message.AccountKeys[ix.ProgramIDIndex]
		if _, ok := seen[program]; ok {
			continue
		}
		seen[program] = struct{}{}
		r.Programs = append(r.Programs, program.String())
	}
	for _, lookup := range tx.Message.AddressTableLookups {
		r.LookupTables = append(r.LookupTables, lookup.AccountKey.String())
	}
	return r, nil
}
