package cosign

import (
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// MessageBytes is the exact payload every signer signs.
func MessageBytes(msg *solana.Message) ([]byte, error) {
	content, err := msg.MarshalBinary()
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedTransaction, "encode message: %v", err)
	}
	return content, nil
}

// RequiredSigners returns the signer prefix of the account keys.
func RequiredSigners(msg *solana.Message) (solana.PublicKeySlice, error) {
	n := int(msg.Header.NumRequiredSignatures)
	if n > len(msg.AccountKeys) {
		return nil, errors.Wrapf(ErrMalformedTransaction, "header requires %d signers but message has %d keys", n, len(msg.AccountKeys))
	}
	return msg.AccountKeys[:n], nil
}

// AssemblePartial signs msg with every known signer and reserves a
// placeholder slot for every pending one. Each required signer must be either
// known or pending.
func AssemblePartial(msg *solana.Message, known []Signer, pending []solana.PublicKey) (*solana.Transaction, error) {
	required, err := RequiredSigners(msg)
	if err != nil {
		return nil, err
	}

	seen := make(map[solana.PublicKey]struct{}, len(known)+len(pending))
	claim := func(key solana.PublicKey) error {
		if _, dup := seen[key]; dup {
			return errors.Wrapf(ErrDuplicateSigner, "%s", key)
		}
		seen[key] = struct{}{}
		return nil
	}
	for _, s := range known {
		if s == nil {
			return nil, errors.Wrap(ErrUnknownSigner, "nil signer")
		}
		if err := claim(s.PublicKey()); err != nil {
			return nil, err
		}
	}
	for _, key := range pending {
		if err := claim(key); err != nil {
			return nil, err
		}
	}

	slots := make(map[solana.PublicKey]int, len(seen))
	for key := range seen {
		i, err := slotOf(required, key)
		if errors.Is(err, ErrAmbiguousSigner) {
			return nil, errors.Wrapf(err, "%s", key)
		}
		if err != nil {
			return nil, errors.Wrapf(ErrUnknownSigner, "%s", key)
		}
		slots[key] = i
	}
	for i, key := range required {
		if _, ok := seen[key]; !ok {
			return nil, errors.Wrapf(ErrUnknownSigner, "required signer %d (%s) is neither known nor pending", i, key)
		}
	}

	content, err := MessageBytes(msg)
	if err != nil {
		return nil, err
	}

	signatures := make([]solana.Signature, len(required))
	for _, s := range known {
		sig, err := s.Sign(content)
		if err != nil {
			return nil, errors.Wrapf(err, "sign with %s", s.PublicKey())
		}
		signatures[slots[s.PublicKey()]] = sig
	}

	return &solana.Transaction{
		Signatures: signatures,
		Message:    *msg,
	}, nil
}

// CompleteSignature fills the slot of signer and returns the updated copy.
// The slot is found by scanning the transaction's own account keys. The copy
// shares no slices with tx.
func CompleteSignature(tx *solana.Transaction, signer Signer) (*solana.Transaction, error) {
	if signer == nil {
		return nil, errors.Wrap(ErrSignerNotFound, "nil signer")
	}
	required, err := RequiredSigners(&tx.Message)
	if err != nil {
		return nil, err
	}
	if len(tx.Signatures) != len(required) {
		return nil, errors.Wrapf(ErrMalformedTransaction, "%d signatures for %d required signers", len(tx.Signatures), len(required))
	}

	key := signer.PublicKey()
	i, err := slotOf(tx.Message.AccountKeys, key)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", key)
	}
	if i >= len(required) {
		return nil, errors.Wrapf(ErrSignerNotFound, "%s is account %d, outside the %d required signers", key, i, len(required))
	}

	content, err := MessageBytes(&tx.Message)
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(content)
	if err != nil {
		return nil, errors.Wrapf(err, "sign with %s", key)
	}

	signatures := make([]solana.Signature, len(tx.Signatures))
	copy(signatures, tx.Signatures)
	signatures[i] = sig
	return &solana.Transaction{
		Signatures: signatures,
		Message:    cloneMessage(tx.Message),
	}, nil
}

// cloneMessage copies msg down to its byte slices. Nil slices stay nil.
func cloneMessage(msg solana.Message) solana.Message {
	out := msg
	if msg.AccountKeys != nil {
		out.AccountKeys = append(solana.PublicKeySlice{}, msg.AccountKeys...)
	}
	if msg.Instructions != nil {
		out.Instructions = make([]solana.CompiledInstruction, len(msg.Instructions))
		for i, ix := range msg.Instructions {
			out.Instructions[i] = solana.CompiledInstruction{
				ProgramIDIndex: ix.ProgramIDIndex,
				Accounts:       cloneSlice(ix.Accounts),
				Data:           cloneSlice(ix.Data),
			}
		}
	}
	if msg.AddressTableLookups != nil {
		out.AddressTableLookups = make(solana.MessageAddressTableLookupSlice, len(msg.AddressTableLookups))
		for i, lookup := range msg.AddressTableLookups {
			out.AddressTableLookups[i] = solana.MessageAddressTableLookup{
				AccountKey:      lookup.AccountKey,
				WritableIndexes: cloneSlice(lookup.WritableIndexes),
				ReadonlyIndexes: cloneSlice(lookup.ReadonlyIndexes),
			}
		}
	}
	return out
}

func cloneSlice[S ~[]E, E any](s S) S {
	if s == nil {
		return nil
	}
	return append(S{}, s...)
}

// slotOf returns the single position of key in keys.
func slotOf(keys solana.PublicKeySlice, key solana.PublicKey) (int, error) {
	slot := -1
	for i, k := range keys {
		if !k.Equals(key) {
			continue
		}
		if slot >= 0 {
			return 0, errors.Wrapf(ErrAmbiguousSigner, "found at %d and %d", slot, i)
		}
		slot = i
	}
	if slot < 0 {
		return 0, ErrSignerNotFound
	}
	return slot, nil
}

// Placeholders lists the slots still waiting for a signature.
func Placeholders(tx *solana.Transaction) []int {
	var out []int
	for i, sig := range tx.Signatures {
		if IsPlaceholder(sig) {
			out = append(out, i)
		}
	}
	return out
}

// PendingSigners lists the keys whose slots are still placeholders.
func PendingSigners(tx *solana.Transaction) solana.PublicKeySlice {
	var out solana.PublicKeySlice
	for _, i := range Placeholders(tx) {
		if i < len(tx.Message.AccountKeys) {
			out = append(out, tx.Message.AccountKeys[i])
		}
	}
	return out
}

// IsFullySigned reports whether every required slot holds a signature.
func IsFullySigned(tx *solana.Transaction) bool {
	return len(tx.Signatures) == int(tx.Message.Header.NumRequiredSignatures) && len(Placeholders(tx)) == 0
}

// VerifySignatures checks every filled slot against the message bytes.
// Placeholders are skipped.
func VerifySignatures(tx *solana.Transaction) error {
	required, err := RequiredSigners(&tx.Message)
	if err != nil {
		return err
	}
	if len(tx.Signatures) != len(required) {
		return errors.Wrapf(ErrMalformedTransaction, "%d signatures for %d required signers", len(tx.Signatures), len(required))
	}
	content, err := MessageBytes(&tx.Message)
	if err != nil {
		return err
	}
	for i, sig := range tx.Signatures {
		if IsPlaceholder(sig) {
			continue
		}
		if !sig.Verify(required[i], content) {
			return errors.Wrapf(ErrMalformedTransaction, "signature %d does not verify for %s", i, required[i])
		}
	}
	return nil
}
