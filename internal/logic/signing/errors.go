package signing

import "github.com/pkg/errors"

var (
	ErrNotFound        = errors.New("co-sign result not found")
	ErrAlreadyCosigned = errors.New("message was already co-signed")
)
