package crypto

// KeyChain covers every key-handling primitive the vault security gate
// needs: salt and key generation, password-based key derivation, key
// wrapping, and payload encryption.
//
// Terminology:
//   - VK  — vault key, the random 256-bit key payloads are encrypted with.
//   - KEK — key-encryption key, derived from the master password; wraps VK.
type KeyChain interface {
	// GenerateSalt returns 16 random bytes for Argon2id derivation.
	GenerateSalt() ([]byte, error)

	// GenerateVaultKey returns a fresh random 256-bit vault key.
	GenerateVaultKey() ([]byte, error)

	// DeriveKEK derives a 256-bit key-encryption key from the master
	// password and salt using Argon2id. The result exists only in the
	// session owner's memory and never leaves the process.
	DeriveKEK(masterPassword string, salt []byte) []byte

	// WrapKey encrypts VK with KEK using AES-256-GCM. The returned blob is
	// nonce ‖ ciphertext and doubles as the password verifier: unwrapping
	// with a wrong KEK fails the GCM tag check.
	WrapKey(vk, kek []byte) ([]byte, error)

	// UnwrapKey reverses WrapKey. An error almost always means a wrong
	// master password.
	UnwrapKey(wrapped, kek []byte) ([]byte, error)

	// EncryptJSON marshals data to JSON and encrypts it with key using
	// AES-256-GCM, returning Base64(nonce ‖ ciphertext).
	EncryptJSON(data any, key []byte) (string, error)

	// DecryptJSON reverses EncryptJSON into target, which must be a
	// non-nil pointer.
	DecryptJSON(encryptedB64 string, key []byte, target any) error
}
