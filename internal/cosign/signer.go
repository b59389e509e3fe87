package cosign

import "github.com/gagliardetto/solana-go"

// Signer produces ed25519 signatures for one account key.
// solana.PrivateKey satisfies it.
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(payload []byte) (solana.Signature, error)
}

var _ Signer = solana.PrivateKey(nil)

// Placeholder is written into slots of signers that have not signed yet.
// It has the exact size of a real signature.
var Placeholder = solana.Signature{}

// IsPlaceholder reports whether sig is the empty slot marker.
func IsPlaceholder(sig solana.Signature) bool {
	return sig.Equals(Placeholder)
}
