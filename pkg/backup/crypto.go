package backup

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/voxvault/voxvault/pkg/crypto"
)

// HKDF info strings splitting the Argon2id master key into independent
// encryption and MAC keys.
const (
	hkdfInfoEncryption = "voxvault-backup-encryption"
	hkdfInfoMAC        = "voxvault-backup-mac"
)

// deriveKeys derives the encryption and MAC keys from a backup
// passphrase and per-container salt.
func deriveKeys(passphrase, salt []byte, kdf crypto.Params) (encKey, macKey []byte, err error) {
	if len(passphrase) == 0 {
		return nil, nil, ErrEmptyPassphrase
	}

	master := kdf.DeriveKey(passphrase, salt)
	defer crypto.SecureWipe(master)

	encKey, err = deriveHKDF(master, []byte(hkdfInfoEncryption))
	if err != nil {
		return nil, nil, fmt.Errorf("backup: failed to derive encryption key: %w", err)
	}
	macKey, err = deriveHKDF(master, []byte(hkdfInfoMAC))
	if err != nil {
		crypto.SecureWipe(encKey)
		return nil, nil, fmt.Errorf("backup: failed to derive mac key: %w", err)
	}
	return encKey, macKey, nil
}

func deriveHKDF(secret, info []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, nil, info)
	key := make([]byte, crypto.KeyLength)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// sealPayload encrypts the payload with AES-256-GCM and prepends the nonce.
func sealPayload(plaintext, key []byte) ([]byte, error) {
	ciphertext, nonce, err := crypto.Encrypt(key, plaintext)
	if err != nil {
		return nil, fmt.Errorf("backup: encryption failed: %w", err)
	}
	out := make([]byte, 0, len(nonce)+len(ciphertext))
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// openPayload decrypts a nonce-prepended payload.
func openPayload(data, key []byte) ([]byte, error) {
	if len(data) < crypto.NonceLength {
		return nil, ErrCorrupt
	}
	plaintext, err := crypto.Decrypt(key, data[crypto.NonceLength:], data[:crypto.NonceLength])
	if err != nil {
		return nil, fmt.Errorf("%w: decryption failed", ErrIntegrityFailed)
	}
	return plaintext, nil
}

func computeMAC(data, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func verifyMAC(data, tag, key []byte) bool {
	return hmac.Equal(computeMAC(data, key), tag)
}
