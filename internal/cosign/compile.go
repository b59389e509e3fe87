package cosign

import (
	"bytes"
	"sort"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

const (
	// MaxTransactionSize is the largest serialized transaction a validator accepts.
	MaxTransactionSize = 1232

	// indexes are encoded as u8
	maxAccountKeys = 256
)

// LookupTable is a resolved address lookup table.
type LookupTable struct {
	Key       solana.PublicKey
	Addresses solana.PublicKeySlice
}

type keyMeta struct {
	signer   bool
	writable bool
	invoked  bool
}

// CompileMessage builds a v0 message paid by payer.
//
// Keys are deduplicated and grouped as payer, writable signers, readonly
// signers, writable accounts, readonly accounts. Inside a group keys are
// ordered by value, so the same inputs always give the same bytes.
// Non-signer accounts found in tables are referenced through lookups;
// tables are consulted in the order given.
func CompileMessage(
	payer solana.PublicKey,
	instructions []solana.Instruction,
	tables []LookupTable,
	recentBlockhash solana.Hash,
) (*solana.Message, error) {
	if payer.IsZero() {
		return nil, errors.Wrap(ErrCompilation, "payer is not set")
	}

	metas := map[solana.PublicKey]*keyMeta{
		payer: {signer: true, writable: true},
	}
	get := func(key solana.PublicKey) *keyMeta {
		m, ok := metas[key]
		if !ok {
			m = &keyMeta{}
			metas[key] = m
		}
		return m
	}

	payloads := make([][]byte, len(instructions))
	for i, ix := range instructions {
		if ix == nil {
			return nil, errors.Wrapf(ErrCompilation, "instruction %d is nil", i)
		}
		programID := ix.ProgramID()
		if programID.Equals(payer) {
			return nil, errors.Wrapf(ErrCompilation, "instruction %d invokes the fee payer %s as a program", i, payer)
		}
		get(programID).invoked = true

		for j, acc := range ix.Accounts() {
			if acc == nil {
				return nil, errors.Wrapf(ErrCompilation, "instruction %d account %d is nil", i, j)
			}
			m := get(acc.PublicKey)
			m.signer = m.signer || acc.IsSigner
			m.writable = m.writable || acc.IsWritable
		}

		data, err := ix.Data()
		if err != nil {
			return nil, errors.Wrapf(ErrCompilation, "encode instruction %d: %v", i, err)
		}
		payloads[i] = data
	}

	others := make(solana.PublicKeySlice, 0, len(metas))
	for key := range metas {
		if !key.Equals(payer) {
			others = append(others, key)
		}
	}
	sort.Slice(others, func(i, j int) bool {
		return bytes.Compare(others[i][:], others[j][:]) < 0
	})

	writableSigners := solana.PublicKeySlice{payer}
	var readonlySigners, writable, readonly solana.PublicKeySlice
	for _, key := range others {
		m := metas[key]
		switch {
		case m.signer && m.writable:
			writableSigners = append(writableSigners, key)
		case m.signer:
			readonlySigners = append(readonlySigners, key)
		case m.writable:
			writable = append(writable, key)
		default:
			readonly = append(readonly, key)
		}
	}

	var (
		lookups        solana.MessageAddressTableLookupSlice
		loadedWritable solana.PublicKeySlice
		loadedReadonly solana.PublicKeySlice
	)
	for _, table := range tables {
		positions := tablePositions(table)
		lookup := solana.MessageAddressTableLookup{AccountKey: table.Key}

		var w, r solana.PublicKeySlice
		writable, w, lookup.WritableIndexes = extract(writable, positions, metas)
		readonly, r, lookup.ReadonlyIndexes = extract(readonly, positions, metas)
		if len(w) == 0 && len(r) == 0 {
			continue
		}
		loadedWritable = append(loadedWritable, w...)
		loadedReadonly = append(loadedReadonly, r...)
		lookups = append(lookups, lookup)
	}

	numSigners := len(writableSigners) + len(readonlySigners)
	if numSigners > 255 {
		return nil, errors.Wrapf(ErrCompilation, "%d signers exceed the header limit", numSigners)
	}

	static := make(solana.PublicKeySlice, 0, numSigners+len(writable)+len(readonly))
	static = append(static, writableSigners...)
	static = append(static, readonlySigners...)
	static = append(static, writable...)
	static = append(static, readonly...)

	total := len(static) + len(loadedWritable) + len(loadedReadonly)
	if total > maxAccountKeys {
		return nil, errors.Wrapf(ErrCompilation, "%d account keys exceed the limit of %d", total, maxAccountKeys)
	}

	index := make(map[solana.PublicKey]uint16, total)
	for _, keys := range []solana.PublicKeySlice{static, loadedWritable, loadedReadonly} {
		for _, key := range keys {
			index[key] = uint16(len(index))
		}
	}

	compiled := make([]solana.CompiledInstruction, len(instructions))
	for i, ix := range instructions {
		accounts := ix.Accounts()
		indexes := make([]uint16, len(accounts))
		for j, acc := range accounts {
			indexes[j] = index[acc.PublicKey]
		}
		compiled[i] = solana.CompiledInstruction{
			ProgramIDIndex: index[ix.ProgramID()],
			Accounts:       indexes,
			Data:           payloads[i],
		}
	}

	msg := &solana.Message{
		AccountKeys: static,
		Header: solana.MessageHeader{
			NumRequiredSignatures:       uint8(numSigners),
			NumReadonlySignedAccounts:   uint8(len(readonlySigners)),
			NumReadonlyUnsignedAccounts: uint8(len(readonly)),
		},
		RecentBlockhash:     recentBlockhash,
		Instructions:        compiled,
		AddressTableLookups: lookups,
	}
	msg.SetVersion(solana.MessageVersionV0)

	size, err := transactionSize(msg)
	if err != nil {
		return nil, errors.Wrapf(ErrCompilation, "encode message: %v", err)
	}
	if size > MaxTransactionSize {
		return nil, errors.Wrapf(ErrCompilation, "transaction of %d bytes exceeds %d", size, MaxTransactionSize)
	}
	return msg, nil
}

// tablePositions maps each address to its first addressable index.
func tablePositions(table LookupTable) map[solana.PublicKey]uint8 {
	positions := make(map[solana.PublicKey]uint8, len(table.Addresses))
	for i, addr := range table.Addresses {
		if i >= maxAccountKeys {
			break
		}
		if _, ok := positions[addr]; !ok {
			positions[addr] = uint8(i)
		}
	}
	return positions
}

// extract splits keys into those kept static and those loaded from the table.
// Invoked programs always stay static.
func extract(
	keys solana.PublicKeySlice,
	positions map[solana.PublicKey]uint8,
	metas map[solana.PublicKey]*keyMeta,
) (kept, loaded solana.PublicKeySlice, indexes solana.Uint8SliceAsNum) {
	for _, key := range keys {
		pos, ok := positions[key]
		if !ok || metas[key].invoked {
			kept = append(kept, key)
			continue
		}
		loaded = append(loaded, key)
		indexes = append(indexes, pos)
	}
	return kept, loaded, indexes
}

// transactionSize is the wire size of msg once every slot holds a signature.
func transactionSize(msg *solana.Message) (int, error) {
	content, err := msg.MarshalBinary()
	if err != nil {
		return 0, err
	}
	var prefix []byte
	if err := bin.EncodeCompactU16Length(&prefix, int(msg.Header.NumRequiredSignatures)); err != nil {
		return 0, err
	}
	return len(prefix) + int(msg.Header.NumRequiredSignatures)*solana.SignatureLength + len(content), nil
}
