package cosign

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k
}

// payerSenderMessage compiles a transfer from sender, fees paid by payer.
func payerSenderMessage(t *testing.T, payer, sender solana.PublicKey, recipient solana.PublicKey) *solana.Message {
	t.Helper()
	ix := system.NewTransferInstruction(1_000, sender, recipient).Build()
	msg, err := CompileMessage(payer, []solana.Instruction{ix}, nil, solana.Hash{1, 2, 3})
	require.NoError(t, err)
	return msg
}

func TestCompileMessageLayout(t *testing.T) {
	payer, sender := newKey(t), newKey(t)
	recipient := newKey(t).PublicKey()
	msg := payerSenderMessage(t, payer.PublicKey(), sender.PublicKey(), recipient)

	require.Equal(t, uint8(2), msg.Header.NumRequiredSignatures)
	require.Equal(t, uint8(0), msg.Header.NumReadonlySignedAccounts)
	require.Equal(t, uint8(1), msg.Header.NumReadonlyUnsignedAccounts)
	require.Equal(t, solana.PublicKeySlice{
		payer.PublicKey(), sender.PublicKey(), recipient, solana.SystemProgramID,
	}, msg.AccountKeys)
	require.Len(t, msg.Instructions, 1)
	require.Equal(t, uint16(3), msg.Instructions[0].ProgramIDIndex)
	require.Equal(t, []uint16{1, 2}, msg.Instructions[0].Accounts)
}

func TestCompileMessageDeterministic(t *testing.T) {
	payer := newKey(t).PublicKey()
	var ixs []solana.Instruction
	for i := 0; i < 6; i++ {
		ixs = append(ixs, system.NewTransferInstruction(uint64(i+1), payer, newKey(t).PublicKey()).Build())
	}

	first, err := CompileMessage(payer, ixs, nil, solana.Hash{9})
	require.NoError(t, err)
	want, err := MessageBytes(first)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		again, err := CompileMessage(payer, ixs, nil, solana.Hash{9})
		require.NoError(t, err)
		got, err := MessageBytes(again)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestCompileMessageErrors(t *testing.T) {
	payer := newKey(t).PublicKey()

	_, err := CompileMessage(solana.PublicKey{}, nil, nil, solana.Hash{})
	require.ErrorIs(t, err, ErrCompilation)

	_, err = CompileMessage(payer, []solana.Instruction{nil}, nil, solana.Hash{})
	require.ErrorIs(t, err, ErrCompilation)

	selfInvoke := solana.NewInstruction(payer, solana.AccountMetaSlice{}, []byte{1})
	_, err = CompileMessage(payer, []solana.Instruction{selfInvoke}, nil, solana.Hash{})
	require.ErrorIs(t, err, ErrCompilation)

	huge := solana.NewInstruction(solana.MemoProgramID, solana.AccountMetaSlice{
		solana.Meta(payer).SIGNER(),
	}, make([]byte, MaxTransactionSize))
	_, err = CompileMessage(payer, []solana.Instruction{huge}, nil, solana.Hash{})
	require.ErrorIs(t, err, ErrCompilation)
}

func TestCompileMessageLookupTables(t *testing.T) {
	payer, sender := newKey(t), newKey(t)
	recipient := newKey(t).PublicKey()
	table := LookupTable{
		Key:       newKey(t).PublicKey(),
		Addresses: solana.PublicKeySlice{newKey(t).PublicKey(), recipient, solana.SystemProgramID},
	}
	ix := system.NewTransferInstruction(5, sender.PublicKey(), recipient).Build()

	msg, err := CompileMessage(payer.PublicKey(), []solana.Instruction{ix}, []LookupTable{table}, solana.Hash{7})
	require.NoError(t, err)

	// programs stay static, the recipient moves into the table
	require.Equal(t, solana.PublicKeySlice{payer.PublicKey(), sender.PublicKey(), solana.SystemProgramID}, msg.AccountKeys)
	require.Len(t, msg.AddressTableLookups, 1)
	require.Equal(t, table.Key, msg.AddressTableLookups[0].AccountKey)
	require.Equal(t, solana.Uint8SliceAsNum{1}, msg.AddressTableLookups[0].WritableIndexes)
	require.Empty(t, msg.AddressTableLookups[0].ReadonlyIndexes)
	require.Equal(t, []uint16{1, 3}, msg.Instructions[0].Accounts)

	decompiled, err := DecompileMessage(msg, []LookupTable{table})
	require.NoError(t, err)
	require.Len(t, decompiled, 1)
	require.Equal(t, solana.SystemProgramID, decompiled[0].ProgramID())
	require.Equal(t, ix.Accounts(), decompiled[0].Accounts())
	wantData, err := ix.Data()
	require.NoError(t, err)
	gotData, err := decompiled[0].Data()
	require.NoError(t, err)
	require.Equal(t, wantData, gotData)

	_, err = DecompileMessage(msg, nil)
	require.ErrorIs(t, err, ErrCompilation)
}

func TestDecompileRecompileUnderNewPayer(t *testing.T) {
	user, gas := newKey(t), newKey(t)
	recipient := newKey(t).PublicKey()
	ix := system.NewTransferInstruction(42, user.PublicKey(), recipient).Build()

	original, err := CompileMessage(user.PublicKey(), []solana.Instruction{ix}, nil, solana.Hash{4})
	require.NoError(t, err)
	ixs, err := DecompileMessage(original, nil)
	require.NoError(t, err)

	repaid, err := CompileMessage(gas.PublicKey(), ixs, nil, solana.Hash{4})
	require.NoError(t, err)
	required, err := RequiredSigners(repaid)
	require.NoError(t, err)
	require.Equal(t, solana.PublicKeySlice{gas.PublicKey(), user.PublicKey()}, required)
}

func TestTwoPartyPayerSenderSplit(t *testing.T) {
	payer, sender := newKey(t), newKey(t)
	msg := payerSenderMessage(t, payer.PublicKey(), sender.PublicKey(), newKey(t).PublicKey())

	partial, err := AssemblePartial(msg, []Signer{payer}, []solana.PublicKey{sender.PublicKey()})
	require.NoError(t, err)
	require.Equal(t, []int{1}, Placeholders(partial))
	require.Equal(t, solana.PublicKeySlice{sender.PublicKey()}, PendingSigners(partial))
	require.False(t, IsFullySigned(partial))
	require.NoError(t, VerifySignatures(partial))

	raw, err := Serialize(partial)
	require.NoError(t, err)
	received, err := Deserialize(raw)
	require.NoError(t, err)

	done, err := CompleteSignature(received, sender)
	require.NoError(t, err)
	require.True(t, IsFullySigned(done))
	require.NoError(t, VerifySignatures(done))

	direct, err := AssemblePartial(msg, []Signer{payer, sender}, nil)
	require.NoError(t, err)
	require.True(t, Equal(direct, done))
	require.Equal(t, direct.Signatures, done.Signatures)

	// the received copy keeps its placeholder
	require.Equal(t, []int{1}, Placeholders(received))
}

func TestOrderIndependence(t *testing.T) {
	payer, sender := newKey(t), newKey(t)
	msg := payerSenderMessage(t, payer.PublicKey(), sender.PublicKey(), newKey(t).PublicKey())

	empty, err := AssemblePartial(msg, nil, []solana.PublicKey{sender.PublicKey(), payer.PublicKey()})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, Placeholders(empty))

	ab, err := CompleteSignature(empty, payer)
	require.NoError(t, err)
	ab, err = CompleteSignature(ab, sender)
	require.NoError(t, err)

	ba, err := CompleteSignature(empty, sender)
	require.NoError(t, err)
	ba, err = CompleteSignature(ba, payer)
	require.NoError(t, err)

	require.Equal(t, ab.Signatures, ba.Signatures)
	require.True(t, Equal(ab, ba))
}

func TestPlaceholderIntegrity(t *testing.T) {
	payer, sender := newKey(t), newKey(t)
	msg := payerSenderMessage(t, payer.PublicKey(), sender.PublicKey(), newKey(t).PublicKey())

	partial, err := AssemblePartial(msg, []Signer{payer}, []solana.PublicKey{sender.PublicKey()})
	require.NoError(t, err)
	full, err := CompleteSignature(partial, sender)
	require.NoError(t, err)

	require.Len(t, partial.Signatures[1][:], solana.SignatureLength)
	require.True(t, IsPlaceholder(partial.Signatures[1]))

	rawPartial, err := Serialize(partial)
	require.NoError(t, err)
	rawFull, err := Serialize(full)
	require.NoError(t, err)
	require.Equal(t, len(rawFull), len(rawPartial))
}

func TestRepeatedSerializeCycle(t *testing.T) {
	payer, sender := newKey(t), newKey(t)
	msg := payerSenderMessage(t, payer.PublicKey(), sender.PublicKey(), newKey(t).PublicKey())
	partial, err := AssemblePartial(msg, []Signer{payer}, []solana.PublicKey{sender.PublicKey()})
	require.NoError(t, err)

	wantMsg, err := MessageBytes(&partial.Message)
	require.NoError(t, err)
	wantRaw, err := Serialize(partial)
	require.NoError(t, err)

	current := partial
	for i := 0; i < 3; i++ {
		raw, err := Serialize(current)
		require.NoError(t, err)
		require.Equal(t, wantRaw, raw)

		current, err = Deserialize(raw)
		require.NoError(t, err)
		require.True(t, IsPlaceholder(current.Signatures[1]))
		require.Equal(t, partial.Signatures[0], current.Signatures[0])
		require.Equal(t, msg.AccountKeys, current.Message.AccountKeys)

		gotMsg, err := MessageBytes(&current.Message)
		require.NoError(t, err)
		require.Equal(t, wantMsg, gotMsg)
	}
}

func TestCodecTextEncodings(t *testing.T) {
	payer, sender := newKey(t), newKey(t)
	msg := payerSenderMessage(t, payer.PublicKey(), sender.PublicKey(), newKey(t).PublicKey())
	partial, err := AssemblePartial(msg, []Signer{payer}, []solana.PublicKey{sender.PublicKey()})
	require.NoError(t, err)

	b64, err := EncodeBase64(partial)
	require.NoError(t, err)
	fromB64, err := DecodeBase64(b64)
	require.NoError(t, err)
	require.True(t, Equal(partial, fromB64))

	b58, err := EncodeBase58(partial)
	require.NoError(t, err)
	fromB58, err := DecodeBase58(b58)
	require.NoError(t, err)
	require.True(t, Equal(partial, fromB58))

	_, err = DecodeBase64("not base64!")
	require.ErrorIs(t, err, ErrMalformedTransaction)
}

func TestDeserializeRejectsMalformed(t *testing.T) {
	payer := newKey(t)
	msg := payerSenderMessage(t, payer.PublicKey(), newKey(t).PublicKey(), newKey(t).PublicKey())
	tx, err := AssemblePartial(msg, []Signer{payer}, []solana.PublicKey{msg.AccountKeys[1]})
	require.NoError(t, err)
	raw, err := Serialize(tx)
	require.NoError(t, err)

	_, err = Deserialize(append(raw, 0))
	require.ErrorIs(t, err, ErrMalformedTransaction)

	_, err = Deserialize(raw[:len(raw)-10])
	require.ErrorIs(t, err, ErrMalformedTransaction)

	short := &solana.Transaction{Signatures: tx.Signatures[:1], Message: tx.Message}
	_, err = Serialize(short)
	require.ErrorIs(t, err, ErrMalformedTransaction)
}

func TestMessageDigestStableAcrossSigning(t *testing.T) {
	payer, sender := newKey(t), newKey(t)
	msg := payerSenderMessage(t, payer.PublicKey(), sender.PublicKey(), newKey(t).PublicKey())
	partial, err := AssemblePartial(msg, []Signer{payer}, []solana.PublicKey{sender.PublicKey()})
	require.NoError(t, err)
	full, err := CompleteSignature(partial, sender)
	require.NoError(t, err)

	a, err := MessageDigest(&partial.Message)
	require.NoError(t, err)
	b, err := MessageDigest(&full.Message)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.NotEmpty(t, a)
}

func TestAssemblePartialSignerPartition(t *testing.T) {
	payer, sender, stranger := newKey(t), newKey(t), newKey(t)
	recipient := newKey(t).PublicKey()
	msg := payerSenderMessage(t, payer.PublicKey(), sender.PublicKey(), recipient)

	t.Run("duplicate across known and pending", func(t *testing.T) {
		tx, err := AssemblePartial(msg, []Signer{payer, sender}, []solana.PublicKey{sender.PublicKey()})
		require.ErrorIs(t, err, ErrDuplicateSigner)
		require.Nil(t, tx)
	})
	t.Run("duplicate within known", func(t *testing.T) {
		_, err := AssemblePartial(msg, []Signer{payer, payer, sender}, nil)
		require.ErrorIs(t, err, ErrDuplicateSigner)
	})
	t.Run("pending outside prefix", func(t *testing.T) {
		_, err := AssemblePartial(msg, []Signer{payer, sender}, []solana.PublicKey{recipient})
		require.ErrorIs(t, err, ErrUnknownSigner)
	})
	t.Run("known stranger", func(t *testing.T) {
		_, err := AssemblePartial(msg, []Signer{payer, sender, stranger}, nil)
		require.ErrorIs(t, err, ErrUnknownSigner)
	})
	t.Run("uncovered required signer", func(t *testing.T) {
		_, err := AssemblePartial(msg, []Signer{payer}, nil)
		require.ErrorIs(t, err, ErrUnknownSigner)
	})
}

func TestCompleteSignatureResolution(t *testing.T) {
	payer, sender := newKey(t), newKey(t)
	recipient := newKey(t)
	msg := payerSenderMessage(t, payer.PublicKey(), sender.PublicKey(), recipient.PublicKey())
	partial, err := AssemblePartial(msg, []Signer{payer}, []solana.PublicKey{sender.PublicKey()})
	require.NoError(t, err)
	before, err := Serialize(partial)
	require.NoError(t, err)

	_, err = CompleteSignature(partial, newKey(t))
	require.ErrorIs(t, err, ErrSignerNotFound)

	_, err = CompleteSignature(partial, recipient)
	require.ErrorIs(t, err, ErrSignerNotFound)

	after, err := Serialize(partial)
	require.NoError(t, err)
	require.Equal(t, before, after)

	dup := newKey(t)
	ambiguous := &solana.Transaction{
		Signatures: make([]solana.Signature, 2),
		Message: solana.Message{
			AccountKeys: solana.PublicKeySlice{dup.PublicKey(), dup.PublicKey()},
			Header:      solana.MessageHeader{NumRequiredSignatures: 2},
		},
	}
	_, err = CompleteSignature(ambiguous, dup)
	require.ErrorIs(t, err, ErrAmbiguousSigner)

	_, err = AssemblePartial(&ambiguous.Message, []Signer{dup}, nil)
	require.ErrorIs(t, err, ErrAmbiguousSigner)
}

func TestCompleteSignatureIdempotent(t *testing.T) {
	payer, sender := newKey(t), newKey(t)
	msg := payerSenderMessage(t, payer.PublicKey(), sender.PublicKey(), newKey(t).PublicKey())
	full, err := AssemblePartial(msg, []Signer{payer, sender}, nil)
	require.NoError(t, err)

	again, err := CompleteSignature(full, sender)
	require.NoError(t, err)
	require.True(t, Equal(full, again))
}

func TestVerifySignaturesDetectsTampering(t *testing.T) {
	payer, sender := newKey(t), newKey(t)
	msg := payerSenderMessage(t, payer.PublicKey(), sender.PublicKey(), newKey(t).PublicKey())
	full, err := AssemblePartial(msg, []Signer{payer, sender}, nil)
	require.NoError(t, err)

	tampered := *full
	tampered.Message.RecentBlockhash = solana.Hash{0xff}
	err = VerifySignatures(&tampered)
	require.ErrorIs(t, err, ErrMalformedTransaction)
}

type failingSigner struct{ key solana.PublicKey }

func (f failingSigner) PublicKey() solana.PublicKey { return f.key }

func (f failingSigner) Sign([]byte) (solana.Signature, error) {
	return solana.Signature{}, errors.New("device unplugged")
}

func TestSignerFailureLeavesNoTransaction(t *testing.T) {
	payer, sender := newKey(t), newKey(t)
	msg := payerSenderMessage(t, payer.PublicKey(), sender.PublicKey(), newKey(t).PublicKey())

	tx, err := AssemblePartial(msg, []Signer{payer, failingSigner{sender.PublicKey()}}, nil)
	require.Error(t, err)
	require.Nil(t, tx)
}

func TestTxBuilder(t *testing.T) {
	payer, sender := newKey(t), newKey(t)
	recipient := newKey(t).PublicKey()

	tx, err := NewTxBuilder(payer.PublicKey(), solana.Hash{5}).
		AddInstruction(system.NewTransferInstruction(1, sender.PublicKey(), recipient).Build()).
		Build([]Signer{payer}, sender.PublicKey())
	require.NoError(t, err)
	require.Equal(t, payer.PublicKey(), tx.Message.AccountKeys[0])
	require.Equal(t, []int{1}, Placeholders(tx))
}

func TestDescribe(t *testing.T) {
	payer, sender := newKey(t), newKey(t)
	msg := payerSenderMessage(t, payer.PublicKey(), sender.PublicKey(), newKey(t).PublicKey())
	partial, err := AssemblePartial(msg, []Signer{payer}, []solana.PublicKey{sender.PublicKey()})
	require.NoError(t, err)

	r, err := Describe(partial)
	require.NoError(t, err)
	require.Equal(t, "v0", r.Version)
	require.Equal(t, payer.PublicKey().String(), r.Payer)
	require.Equal(t, []Slot{
		{Index: 0, Signer: payer.PublicKey().String(), Signed: true},
		{Index: 1, Signer: sender.PublicKey().String(), Signed: false},
	}, r.Slots)
	require.Equal(t, []int{1}, r.Placeholders)
	require.False(t, r.FullySigned)
	require.True(t, r.SignaturesValid)
	require.Equal(t, []string{solana.SystemProgramID.String()}, r.Programs)

	raw, err := Serialize(partial)
	require.NoError(t, err)
	require.Equal(t, len(raw), r.Size)

	id, err := MessageDigest(msg)
	require.NoError(t, err)
	require.Equal(t, id, r.ID)
}

func TestCompleteSignatureSharesNoSlices(t *testing.T) {
	payer, sender := newKey(t), newKey(t)
	msg := payerSenderMessage(t, payer.PublicKey(), sender.PublicKey(), newKey(t).PublicKey())
	partial, err := AssemblePartial(msg, []Signer{payer}, []solana.PublicKey{sender.PublicKey()})
	require.NoError(t, err)
	before, err := Serialize(partial)
	require.NoError(t, err)

	full, err := CompleteSignature(partial, sender)
	require.NoError(t, err)
	full.Message.AccountKeys[2] = newKey(t).PublicKey()
	full.Message.Instructions[0].Accounts[0] = 0
	full.Message.Instructions[0].Data[0] ^= 0xff

	after, err := Serialize(partial)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.NoError(t, VerifySignatures(partial))
}

func readonlyAccounts(t *testing.T, n int) (solana.PublicKeySlice, solana.AccountMetaSlice) {
	t.Helper()
	keys := make(solana.PublicKeySlice, n)
	metas := make(solana.AccountMetaSlice, n)
	for i := range keys {
		keys[i] = newKey(t).PublicKey()
		metas[i] = solana.Meta(keys[i])
	}
	return keys, metas
}

func TestCompileMessageAccountLimitWithLookupTables(t *testing.T) {
	payer := newKey(t).PublicKey()

	// payer and the memo program stay static, 254 accounts load from the table
	keys, metas := readonlyAccounts(t, 254)
	table := LookupTable{Key: newKey(t).PublicKey(), Addresses: keys}
	ix := solana.NewInstruction(solana.MemoProgramID, metas, nil)
	msg, err := CompileMessage(payer, []solana.Instruction{ix}, []LookupTable{table}, solana.Hash{2})
	require.NoError(t, err)
	require.Len(t, msg.AccountKeys, 2)
	require.Len(t, msg.AddressTableLookups, 1)
	require.Len(t, msg.AddressTableLookups[0].ReadonlyIndexes, 254)
	require.Contains(t, msg.Instructions[0].Accounts, uint16(255))

	decompiled, err := DecompileMessage(msg, []LookupTable{table})
	require.NoError(t, err)
	require.Equal(t, ix.Accounts(), decompiled[0].Accounts())

	// one more account spread over a second table goes past 256 keys
	more, moreMetas := readonlyAccounts(t, 3)
	second := LookupTable{Key: newKey(t).PublicKey(), Addresses: more}
	over := solana.NewInstruction(solana.MemoProgramID, append(metas, moreMetas...), nil)
	_, err = CompileMessage(payer, []solana.Instruction{over}, []LookupTable{table, second}, solana.Hash{2})
	require.ErrorIs(t, err, ErrCompilation)
	require.Contains(t, err.Error(), "exceed the limit of 256")
}

func TestCosignLegacyTransaction(t *testing.T) {
	payer, sender := newKey(t), newKey(t)
	ix := system.NewTransferInstruction(10, sender.PublicKey(), newKey(t).PublicKey()).Build()
	legacy, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{6}, solana.TransactionPayer(payer.PublicKey()))
	require.NoError(t, err)
	require.False(t, legacy.Message.IsVersioned())
	legacy.Signatures = make([]solana.Signature, legacy.Message.Header.NumRequiredSignatures)

	partial, err := CompleteSignature(legacy, payer)
	require.NoError(t, err)
	raw, err := Serialize(partial)
	require.NoError(t, err)

	decoded, err := Deserialize(raw)
	require.NoError(t, err)
	require.False(t, decoded.Message.IsVersioned())
	require.Equal(t, solana.PublicKeySlice{sender.PublicKey()}, PendingSigners(decoded))
	require.NoError(t, VerifySignatures(decoded))

	full, err := CompleteSignature(decoded, sender)
	require.NoError(t, err)
	require.True(t, IsFullySigned(full))
	require.NoError(t, VerifySignatures(full))

	content, err := legacy.Message.MarshalBinary()
	require.NoError(t, err)
	require.True(t, full.Signatures[1].Verify(sender.PublicKey(), content))
}
