// Package crypto implements the cryptographic primitives for voxvault.
//
// Credential data is protected with AES-256-GCM authenticated encryption.
// Encryption keys are derived from the master passphrase with Argon2id; the
// cost parameters travel in a Params value so callers (and tests) can tune
// them, with DefaultParams returning the OWASP-recommended defaults
// (64 MiB memory, 3 iterations, 4 threads).
//
// A PassphraseRecord stores an Argon2id digest of the passphrase under its
// own salt. The record exists only to recognize a mistyped passphrase; the
// digest is never used as an encryption key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
)

// Key, salt and nonce sizes in bytes.
const (
	// KeyLength is the length of encryption keys (256 bits).
	KeyLength = 32

	// SaltLength is the length of freshly generated KDF salts.
	SaltLength = 16

	// NonceLength is the length of GCM nonces (96 bits).
	NonceLength = 12
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates the key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrInvalidNonceLength indicates the nonce is not 12 bytes.
	ErrInvalidNonceLength = errors.New("crypto: invalid nonce length, must be 12 bytes")

	// ErrDecryptionFailed indicates decryption or authentication tag verification failed.
	ErrDecryptionFailed = errors.New("crypto: decryption failed, authentication tag verification failed")

	// ErrCiphertextTooShort indicates the ciphertext is shorter than the GCM tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
)

// Params holds the Argon2id cost parameters used for key derivation.
//
// The zero value is not usable; start from DefaultParams and override
// fields as needed.
type Params struct {
	// Time is the number of passes over memory.
	Time uint32 `json:"t"`

	// MemoryKiB is the memory cost in KiB.
	MemoryKiB uint32 `json:"m"`

	// Threads is the degree of parallelism.
	Threads uint8 `json:"p"`
}

// DefaultParams returns the Argon2id parameters recommended by OWASP:
// 64 MiB of memory, 3 iterations, 4 threads.
func DefaultParams() Params {
	return Params{Time: 3, MemoryKiB: 64 * 1024, Threads: 4}
}

func (p Params) valid() bool {
	return p.Time >= 1 && p.Threads >= 1
}

// DeriveKey derives a 256-bit key from a passphrase and salt using Argon2id
// with the receiver's cost parameters.
//
// The salt must be unique per derived key; use GenerateSalt. The same
// passphrase, salt and parameters always yield the same key.
func (p Params) DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, p.Time, p.MemoryKiB, p.Threads, KeyLength)
}

// PassphraseRecord is a stored Argon2id digest used to recognize the master
// passphrase. It carries its own salt and the cost parameters the digest was
// computed with, so existing records survive changes to the configured
// defaults.
type PassphraseRecord struct {
	Params
	Salt   []byte `json:"salt"`
	Digest []byte `json:"digest"`
}

// HashPassphrase computes a PassphraseRecord for passphrase under a fresh
// random salt. The digest is for verification only and must never be used
// as an encryption key.
func (p Params) HashPassphrase(passphrase []byte) (PassphraseRecord, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return PassphraseRecord{}, err
	}
	return PassphraseRecord{
		Params: p,
		Salt:   salt,
		Digest: p.DeriveKey(passphrase, salt),
	}, nil
}

// VerifyPassphrase reports whether passphrase matches the record.
//
// Malformed records fail closed: missing salt, missing digest or unusable
// cost parameters never verify.
func VerifyPassphrase(rec PassphraseRecord, passphrase []byte) bool {
	if !rec.valid() || len(rec.Salt) == 0 || len(rec.Digest) == 0 {
		return false
	}
	digest := rec.DeriveKey(passphrase, rec.Salt)
	return subtle.ConstantTimeCompare(digest, rec.Digest) == 1
}

// GenerateKey returns a fresh random 256-bit key, suitable for use as a
// data encryption key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate key: %w", err)
	}
	return key, nil
}

// GenerateSalt returns a fresh random 16-byte KDF salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate salt: %w", err)
	}
	return salt, nil
}

// Encrypt encrypts plaintext using AES-256-GCM.
//
// A cryptographically secure random 12-byte nonce is generated per call and
// the authentication tag is appended to the ciphertext. The nonce must be
// stored alongside the ciphertext for decryption.
func Encrypt(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	if len(key) != KeyLength {
		return nil, nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}

	nonce = make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Decrypt decrypts ciphertext using AES-256-GCM, verifying the
// authentication tag. Tampered or corrupted input, or a wrong key, yields
// ErrDecryptionFailed.
func Decrypt(key, ciphertext, nonce []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	if len(nonce) != NonceLength {
		return nil, ErrInvalidNonceLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}

	if len(ciphertext) < gcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// SecureWipe overwrites b with zeros so key material does not linger in
// memory. runtime.KeepAlive prevents the compiler from eliding the writes.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
