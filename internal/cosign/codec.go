package cosign

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// Serialize encodes tx in wire format: compact-u16 signature count, the
// signatures, then the message bytes. Unlike solana.Transaction.MarshalBinary
// it never pads a short signature list.
func Serialize(tx *solana.Transaction) ([]byte, error) {
	if tx == nil {
		return nil, errors.Wrap(ErrMalformedTransaction, "nil transaction")
	}
	if len(tx.Signatures) != int(tx.Message.Header.NumRequiredSignatures) {
		return nil, errors.Wrapf(ErrMalformedTransaction, "%d signatures for %d required signers",
			len(tx.Signatures), tx.Message.Header.NumRequiredSignatures)
	}
	content, err := MessageBytes(&tx.Message)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 3+len(tx.Signatures)*solana.SignatureLength+len(content))
	if err := bin.EncodeCompactU16Length(&out, len(tx.Signatures)); err != nil {
		return nil, errors.Wrapf(ErrMalformedTransaction, "encode signature count: %v", err)
	}
	for _, sig := range tx.Signatures {
		out = append(out, sig[:]...)
	}
	return append(out, content...), nil
}

// Deserialize decodes the wire format written by Serialize. Legacy and v0
// messages are both accepted.
func Deserialize(raw []byte) (*solana.Transaction, error) {
	decoder := bin.NewBinDecoder(raw)
	tx := new(solana.Transaction)
	if err := tx.UnmarshalWithDecoder(decoder); err != nil {
		return nil, errors.Wrapf(ErrMalformedTransaction, "%v", err)
	}
	if n := decoder.Remaining(); n != 0 {
		return nil, errors.Wrapf(ErrMalformedTransaction, "%d trailing bytes", n)
	}
	if len(tx.Signatures) != int(tx.Message.Header.NumRequiredSignatures) {
		return nil, errors.Wrapf(ErrMalformedTransaction, "%d signatures for %d required signers",
			len(tx.Signatures), tx.Message.Header.NumRequiredSignatures)
	}
	if _, err := RequiredSigners(&tx.Message); err != nil {
		return nil, err
	}
	return tx, nil
}

func EncodeBase64(tx *solana.Transaction) (string, error) {
	raw, err := Serialize(tx)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func DecodeBase64(s string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedTransaction, "base64: %v", err)
	}
	return Deserialize(raw)
}

func EncodeBase58(tx *solana.Transaction) (string, error) {
	raw, err := Serialize(tx)
	if err != nil {
		return "", err
	}
	return base58.Encode(raw), nil
}

func DecodeBase58(s string) (*solana.Transaction, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedTransaction, "base58: %v", err)
	}
	return Deserialize(raw)
}

// Equal reports whether a and b serialize to the same bytes.
func Equal(a, b *solana.Transaction) bool {
	ra, err := Serialize(a)
	if err != nil {
		return false
	}
	rb, err := Serialize(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ra, rb)
}

// MessageDigest is a stable identifier of the message, the same before and
// after any slot is filled: the base58 sha256 of the message bytes.
func MessageDigest(msg *solana.Message) (string, error) {
	content, err := MessageBytes(msg)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(content)
	return base58.Encode(sum[:]), nil
}
