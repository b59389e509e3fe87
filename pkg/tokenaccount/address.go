package tokenaccount

import (
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

var ErrUnsupportedTokenProgram = errors.New("mint is not owned by a token program")

// IsTokenProgram reports whether program is the classic token program or Token-2022.
func IsTokenProgram(program solana.PublicKey) bool {
	return program.Equals(solana.TokenProgramID) || program.Equals(solana.Token2022ProgramID)
}

// Address derives the associated token account of wallet for mint under
// tokenProgram.
func Address(
	wallet solana.PublicKey,
	mint solana.PublicKey,
	tokenProgram solana.PublicKey,
) (solana.PublicKey, uint8, error) {
	if !IsTokenProgram(tokenProgram) {
		return solana.PublicKey{}, 0, errors.Wrapf(ErrUnsupportedTokenProgram, "%s", tokenProgram)
	}
	return solana.FindProgramAddress([][]byte{
		wallet[:],
		tokenProgram[:],
		mint[:],
	},
		solana.SPLAssociatedTokenAccountProgramID,
	)
}
