package cosign

import "github.com/pkg/errors"

// Failures of the assembler. Every returned error wraps exactly one of these,
// so callers can branch with errors.Is.
var (
	ErrCompilation          = errors.New("message compilation failed")
	ErrUnknownSigner        = errors.New("signer is not a required signer of the message")
	ErrDuplicateSigner      = errors.New("signer listed more than once")
	ErrSignerNotFound       = errors.New("signer not found among required signers")
	ErrAmbiguousSigner      = errors.New("signer occupies more than one account slot")
	ErrMalformedTransaction = errors.New("malformed transaction")

	// ErrTransport is never produced by this package; collaborators (rpc,
	// quote api, co-sign transport) wrap their failures with it.
	ErrTransport = errors.New("transport error")
)
