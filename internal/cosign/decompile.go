package cosign

import (
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// DecompileMessage turns a compiled message back into instructions, so they
// can be recompiled under another fee payer. Lookups are resolved through
// tables; a lookup whose table is not provided fails the call.
func DecompileMessage(msg *solana.Message, tables []LookupTable) ([]solana.Instruction, error) {
	keys, numWritableLoaded, err := resolveKeys(msg, tables)
	if err != nil {
		return nil, err
	}

	header := msg.Header
	numStatic := len(msg.AccountKeys)
	numSigners := int(header.NumRequiredSignatures)
	if numSigners > numStatic ||
		int(header.NumReadonlySignedAccounts) > numSigners ||
		int(header.NumReadonlyUnsignedAccounts) > numStatic-numSigners {
		return nil, errors.Wrap(ErrCompilation, "message header does not match its account keys")
	}

	meta := func(i int) *solana.AccountMeta {
		m := &solana.AccountMeta{PublicKey: keys[i], IsSigner: i < numSigners}
		switch {
		case i < numSigners:
			m.IsWritable = i < numSigners-int(header.NumReadonlySignedAccounts)
		case i < numStatic:
			m.IsWritable = i < numStatic-int(header.NumReadonlyUnsignedAccounts)
		default:
			m.IsWritable = i < numStatic+numWritableLoaded
		}
		return m
	}

	out := make([]solana.Instruction, 0, len(msg.Instructions))
	for n, ci := range msg.Instructions {
		if int(ci.ProgramIDIndex) >= numStatic {
			return nil, errors.Wrapf(ErrCompilation, "instruction %d program index %d is not a static key", n, ci.ProgramIDIndex)
		}
		accounts := make(solana.AccountMetaSlice, len(ci.Accounts))
		for j, idx := range ci.Accounts {
			if int(idx) >= len(keys) {
				return nil, errors.Wrapf(ErrCompilation, "instruction %d account index %d out of range", n, idx)
			}
			accounts[j] = meta(int(idx))
		}
		data := make([]byte, len(ci.Data))
		copy(data, ci.Data)
		out = append(out, solana.NewInstruction(keys[ci.ProgramIDIndex], accounts, data))
	}
	return out, nil
}

// resolveKeys returns static keys followed by every loaded writable key and
// then every loaded readonly key.
func resolveKeys(msg *solana.Message, tables []LookupTable) (solana.PublicKeySlice, int, error) {
	keys := make(solana.PublicKeySlice, 0, len(msg.AccountKeys)+msg.AddressTableLookups.NumLookups())
	keys = append(keys, msg.AccountKeys...)
	if len(msg.AddressTableLookups) == 0 {
		return keys, 0, nil
	}

	byKey := make(map[solana.PublicKey]solana.PublicKeySlice, len(tables))
	for _, t := range tables {
		byKey[t.Key] = t.Addresses
	}

	var writable, readonly solana.PublicKeySlice
	for _, lookup := range msg.AddressTableLookups {
		addresses, ok := byKey[lookup.AccountKey]
		if !ok {
			return nil, 0, errors.Wrapf(ErrCompilation, "lookup table %s not provided", lookup.AccountKey)
		}
		for _, idx := range lookup.WritableIndexes {
			if int(idx) >= len(addresses) {
				return nil, 0, errors.Wrapf(ErrCompilation, "lookup table %s has no index %d", lookup.AccountKey, idx)
			}
			writable = append(writable, addresses[idx])
		}
		for _, idx := range lookup.ReadonlyIndexes {
			if int(idx) >= len(addresses) {
				return nil, 0, errors.Wrapf(ErrCompilation, "lookup table %s has no index %d", lookup.AccountKey, idx)
			}
			readonly = append(readonly, addresses[idx])
		}
	}
	keys = append(keys, writable...)
	keys = append(keys, readonly...)
	return keys, len(writable), nil
}
