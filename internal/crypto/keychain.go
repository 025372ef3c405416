// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// keyChain is the private implementation of [KeyChain].
type keyChain struct {
	// Argon2id tuning parameters. Stored in the struct so they can be
	// adjusted per deployment target (e.g. mobile vs. desktop).
	argonTime    uint32
	argonMemory  uint32
	argonThreads uint8
	argonKeyLen  uint32
}

// NewKeyChain constructs a [KeyChain] with the Argon2id parameters
// recommended by OWASP (2024):
//   - time cost:   1 iteration
//   - memory cost: 64 MiB
//   - parallelism: 4 threads
//   - key length:  32 bytes (256 bits)
func NewKeyChain() KeyChain {
	return &keyChain{
		argonTime:    1,
		argonMemory:  64 * 1024, // 64 MiB
		argonThreads: 4,
		argonKeyLen:  32, // 256 bits
	}
}

// GenerateSalt implements [KeyChain]. It reads 16 random bytes from the OS
// CSPRNG. Returns an error if the random read fails.
func (k *keyChain) GenerateSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// GenerateVaultKey implements [KeyChain]. It reads 32 random bytes from the
// OS CSPRNG. Returns an error if the random read fails.
func (k *keyChain) GenerateVaultKey() ([]byte, error) {
	vk := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, vk); err != nil {
		return nil, err
	}
	return vk, nil
}

// DeriveKEK implements [KeyChain]. It derives a 256-bit key-encryption key
// from masterPassword and salt using Argon2id with the parameters stored in
// the receiver.
func (k *keyChain) DeriveKEK(masterPassword string, salt []byte) []byte {
	return argon2.IDKey(
		[]byte(masterPassword),
		salt,
		k.argonTime,
		k.argonMemory,
		k.argonThreads,
		k.argonKeyLen,
	)
}

// WrapKey implements [KeyChain]. It wraps vk with kek using AES-256-GCM.
// A random 12-byte nonce is prepended to the ciphertext so that the
// unwrapping side can locate it: blob = nonce ‖ ciphertext.
func (k *keyChain) WrapKey(vk, kek []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	wrapped := gcm.Seal(nil, nonce, vk, nil)
	return append(nonce, wrapped...), nil
}

// UnwrapKey implements [KeyChain]. It unwraps the blob produced by
// [keyChain.WrapKey] using kek and AES-256-GCM. The blob must be at least as
// long as the GCM nonce (12 bytes). Returns the plaintext vault key, or an
// error if the blob is too short, the KEK is wrong, or the ciphertext is
// corrupted (authentication-tag mismatch).
func (k *keyChain) UnwrapKey(wrapped, kek []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(wrapped) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := wrapped[:nonceSize], wrapped[nonceSize:]

	// An error here almost always means the user entered the wrong master
	// password, producing a wrong KEK.
	vk, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}

	return vk, nil
}

// EncryptJSON implements [KeyChain]. It marshals data to JSON, then encrypts
// it with key using AES-256-GCM. The output is a Base64 (standard encoding)
// string of the blob: nonce (12 bytes) ‖ ciphertext.
func (k *keyChain) EncryptJSON(data any, key []byte) (string, error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal data: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	blob := append(nonce, ciphertext...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptJSON implements [KeyChain]. It Base64-decodes encryptedB64, splits
// out the nonce, decrypts the ciphertext with key via AES-256-GCM, and
// unmarshals the resulting JSON into target. target must be a non-nil
// pointer, identical to the requirement of [encoding/json.Unmarshal].
func (k *keyChain) DecryptJSON(encryptedB64 string, key []byte, target any) error {
	blob, err := base64.StdEncoding.DecodeString(encryptedB64)
	if err != nil {
		return fmt.Errorf("decode base64: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("create gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(blob) < nonceSize {
		return fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("decrypt data: %w", err)
	}

	if err := json.Unmarshal(plaintext, target); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}

	return nil
}
