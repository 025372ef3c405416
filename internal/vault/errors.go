package vault

import "errors"

var (
	// ErrVaultLocked is returned by any operation that needs the vault key
	// while the gate is locked.
	ErrVaultLocked = errors.New("vault is locked")

	// ErrInvalidPassword is returned by Unlock when the master password does
	// not unwrap the stored vault key.
	ErrInvalidPassword = errors.New("invalid master password")
)
