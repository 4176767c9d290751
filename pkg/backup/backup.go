// Package backup implements the encrypted container used for vault
// export and import.
//
// Layout: magic | u32 header length | header JSON | u32 ciphertext
// length | nonce-prepended AES-256-GCM ciphertext | HMAC-SHA256.
//
// The payload is sealed under keys derived from a backup passphrase:
// Argon2id over a fresh salt, then HKDF-split into independent
// encryption and MAC keys. The trailing HMAC covers the header and the
// ciphertext and is verified before any decryption is attempted, so a
// wrong passphrase and a tampered file fail the same way.
package backup

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/voxvault/voxvault/pkg/crypto"
)

// Seal wraps an opaque payload into an encrypted container. entryCount
// is advisory metadata surfaced before import.
func Seal(payload, passphrase []byte, kdf crypto.Params, entryCount int, now time.Time) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	if kdf == (crypto.Params{}) {
		kdf = crypto.DefaultParams()
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("backup: failed to generate salt: %w", err)
	}
	encKey, macKey, err := deriveKeys(passphrase, salt, kdf)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	hdr := &Header{
		Version:    FormatVersion,
		CreatedAt:  now.UTC(),
		KDF:        kdf,
		Salt:       salt,
		EntryCount: entryCount,
	}

	var buf bytes.Buffer
	if err := writeHeader(&buf, hdr); err != nil {
		return nil, err
	}

	sealed, err := sealPayload(payload, encKey)
	if err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(sealed))); err != nil {
		return nil, fmt.Errorf("backup: failed to write payload length: %w", err)
	}
	buf.Write(sealed)

	buf.Write(computeMAC(buf.Bytes(), macKey))
	return buf.Bytes(), nil
}

// Open verifies and decrypts a container, returning the payload and
// its header.
func Open(blob, passphrase []byte) ([]byte, *Header, error) {
	hdr, offset, err := readHeader(blob)
	if err != nil {
		return nil, nil, err
	}

	rest := blob[offset:]
	if len(rest) < 4+hmacLength {
		return nil, nil, ErrCorrupt
	}
	sealedLen := int(binary.BigEndian.Uint32(rest[:4]))
	if sealedLen != len(rest)-4-hmacLength {
		return nil, nil, ErrCorrupt
	}
	sealed := rest[4 : 4+sealedLen]
	tag := rest[4+sealedLen:]

	encKey, macKey, err := deriveKeys(passphrase, hdr.Salt, hdr.KDF)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	if !verifyMAC(blob[:len(blob)-hmacLength], tag, macKey) {
		return nil, nil, ErrIntegrityFailed
	}

	payload, err := openPayload(sealed, encKey)
	if err != nil {
		return nil, nil, err
	}
	return payload, hdr, nil
}
