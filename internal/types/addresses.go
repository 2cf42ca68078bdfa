// Package types provides the well-known program addresses hosted by this runtime.
package types

import "fmt"

// Native program addresses.
var (
	// SystemProgramAddr is the System Program address.
	SystemProgramAddr = MustPubkeyFromBase58("11111111111111111111111111111111")

	// TokenProgramAddr is the Token Program address.
	TokenProgramAddr = MustPubkeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	// SaleProgramAddr is the fixed-price token sale program address.
	SaleProgramAddr = MustPubkeyFromBase58("TokenSa1e1111111111111111111111111111111111")

	// NativeLoaderAddr is the Native Loader address, owner of executable
	// native program accounts.
	NativeLoaderAddr = MustPubkeyFromBase58("NativeLoader1111111111111111111111111111111")
)

// MustPubkeyFromBase58 parses a base58 pubkey or panics.
// Only use for compile-time constants.
func MustPubkeyFromBase58(s string) Pubkey {
	p, err := PubkeyFromBase58(s)
	if err != nil {
		panic(fmt.Sprintf("invalid pubkey constant %q: %v", s, err))
	}
	return p
}

// IsNativeProgram returns true if the pubkey is a program hosted by this runtime.
func IsNativeProgram(p Pubkey) bool {
	switch p {
	case SystemProgramAddr, TokenProgramAddr, SaleProgramAddr:
		return true
	default:
		return false
	}
}
