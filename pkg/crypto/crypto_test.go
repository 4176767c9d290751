package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"testing"
)

// testParams keeps Argon2id cheap so derivation-heavy tests stay fast.
var testParams = Params{Time: 1, MemoryKiB: 64, Threads: 1}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	if p.Time != 3 {
		t.Errorf("Time = %d, want 3", p.Time)
	}
	if p.MemoryKiB != 64*1024 {
		t.Errorf("MemoryKiB = %d, want %d (64 MiB)", p.MemoryKiB, 64*1024)
	}
	if p.Threads != 4 {
		t.Errorf("Threads = %d, want 4", p.Threads)
	}
}

func TestDeriveKey(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}

	key := testParams.DeriveKey([]byte("correct horse"), salt)
	if len(key) != KeyLength {
		t.Fatalf("DeriveKey() returned key of length %d, want %d", len(key), KeyLength)
	}

	// Same passphrase, salt and parameters are deterministic.
	if again := testParams.DeriveKey([]byte("correct horse"), salt); !bytes.Equal(key, again) {
		t.Error("DeriveKey() with same inputs should produce identical keys")
	}

	if other := testParams.DeriveKey([]byte("battery staple"), salt); bytes.Equal(key, other) {
		t.Error("DeriveKey() with different passphrase should produce different key")
	}

	otherSalt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}
	if other := testParams.DeriveKey([]byte("correct horse"), otherSalt); bytes.Equal(key, other) {
		t.Error("DeriveKey() with different salt should produce different key")
	}

	// Cost parameters are part of the derivation.
	costlier := Params{Time: 2, MemoryKiB: 64, Threads: 1}
	if other := costlier.DeriveKey([]byte("correct horse"), salt); bytes.Equal(key, other) {
		t.Error("DeriveKey() with different cost parameters should produce different key")
	}
}

func TestHashPassphraseFreshSalt(t *testing.T) {
	a, err := testParams.HashPassphrase([]byte("open sesame"))
	if err != nil {
		t.Fatalf("HashPassphrase() error = %v", err)
	}
	b, err := testParams.HashPassphrase([]byte("open sesame"))
	if err != nil {
		t.Fatalf("HashPassphrase() error = %v", err)
	}

	if len(a.Salt) != SaltLength {
		t.Errorf("HashPassphrase() salt length = %d, want %d", len(a.Salt), SaltLength)
	}
	if bytes.Equal(a.Salt, b.Salt) {
		t.Error("HashPassphrase() should generate a fresh salt per record")
	}
	if bytes.Equal(a.Digest, b.Digest) {
		t.Error("records with distinct salts should have distinct digests")
	}
}

func TestVerifyPassphrase(t *testing.T) {
	rec, err := testParams.HashPassphrase([]byte("open sesame"))
	if err != nil {
		t.Fatalf("HashPassphrase() error = %v", err)
	}

	if !VerifyPassphrase(rec, []byte("open sesame")) {
		t.Error("VerifyPassphrase() = false for correct passphrase")
	}
	if VerifyPassphrase(rec, []byte("open says me")) {
		t.Error("VerifyPassphrase() = true for wrong passphrase")
	}
}

func TestVerifyPassphraseFailsClosed(t *testing.T) {
	rec, err := testParams.HashPassphrase([]byte("open sesame"))
	if err != nil {
		t.Fatalf("HashPassphrase() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(r PassphraseRecord) PassphraseRecord
	}{
		{"empty record", func(PassphraseRecord) PassphraseRecord {
			return PassphraseRecord{}
		}},
		{"missing salt", func(r PassphraseRecord) PassphraseRecord {
			r.Salt = nil
			return r
		}},
		{"missing digest", func(r PassphraseRecord) PassphraseRecord {
			r.Digest = nil
			return r
		}},
		{"zero time", func(r PassphraseRecord) PassphraseRecord {
			r.Time = 0
			return r
		}},
		{"zero threads", func(r PassphraseRecord) PassphraseRecord {
			r.Threads = 0
			return r
		}},
		{"tampered digest", func(r PassphraseRecord) PassphraseRecord {
			d := make([]byte, len(r.Digest))
			copy(d, r.Digest)
			d[0] ^= 0x01
			r.Digest = d
			return r
		}},
		{"truncated digest", func(r PassphraseRecord) PassphraseRecord {
			r.Digest = r.Digest[:8]
			return r
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if VerifyPassphrase(tt.mutate(rec), []byte("open sesame")) {
				t.Error("VerifyPassphrase() = true for malformed record, want false")
			}
		})
	}
}

// The vault persists the record as JSON; verification must survive the trip.
func TestPassphraseRecordJSONRoundTrip(t *testing.T) {
	rec, err := testParams.HashPassphrase([]byte("open sesame"))
	if err != nil {
		t.Fatalf("HashPassphrase() error = %v", err)
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got PassphraseRecord
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !VerifyPassphrase(got, []byte("open sesame")) {
		t.Error("VerifyPassphrase() = false after JSON round trip")
	}
	if VerifyPassphrase(got, []byte("wrong")) {
		t.Error("VerifyPassphrase() = true for wrong passphrase after JSON round trip")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	large := make([]byte, 4096)
	if _, err := rand.Read(large); err != nil {
		t.Fatalf("failed to generate random data: %v", err)
	}

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"small", []byte("x")},
		{"text", []byte("hunter2, but longer and more secret")},
		{"binary", []byte{0x00, 0xFF, 0x01, 0xFE, 0x02, 0xFD}},
		{"large", large},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, nonce, err := Encrypt(key, tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if len(nonce) != NonceLength {
				t.Errorf("Encrypt() nonce length = %d, want %d", len(nonce), NonceLength)
			}
			if len(ciphertext) < len(tt.plaintext)+16 {
				t.Errorf("Encrypt() ciphertext length = %d, want >= %d (plaintext plus GCM tag)",
					len(ciphertext), len(tt.plaintext)+16)
			}

			decrypted, err := Decrypt(key, ciphertext, nonce)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(decrypted, tt.plaintext) {
				t.Errorf("round trip mismatch: got length %d, want length %d", len(decrypted), len(tt.plaintext))
			}
		})
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	wrongKey, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	ciphertext, nonce, err := Encrypt(key, []byte("secret data"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if _, err := Decrypt(wrongKey, ciphertext, nonce); err != ErrDecryptionFailed {
		t.Errorf("Decrypt() with wrong key error = %v, want %v", err, ErrDecryptionFailed)
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	ciphertext, nonce, err := Encrypt(key, []byte("secret data that should be protected"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	tampered := make([]byte, len(ciphertext))
	copy(tampered, ciphertext)
	tampered[0] ^= 0x01

	if _, err := Decrypt(key, tampered, nonce); err != ErrDecryptionFailed {
		t.Errorf("Decrypt() with tampered ciphertext error = %v, want %v", err, ErrDecryptionFailed)
	}
}

func TestRejectsBadInput(t *testing.T) {
	key := make([]byte, KeyLength)
	nonce := make([]byte, NonceLength)

	if _, _, err := Encrypt(make([]byte, 16), []byte("data")); err != ErrInvalidKeyLength {
		t.Errorf("Encrypt() with 16-byte key error = %v, want %v", err, ErrInvalidKeyLength)
	}
	if _, err := Decrypt(make([]byte, 48), make([]byte, 32), nonce); err != ErrInvalidKeyLength {
		t.Errorf("Decrypt() with 48-byte key error = %v, want %v", err, ErrInvalidKeyLength)
	}
	if _, err := Decrypt(key, make([]byte, 32), make([]byte, 8)); err != ErrInvalidNonceLength {
		t.Errorf("Decrypt() with 8-byte nonce error = %v, want %v", err, ErrInvalidNonceLength)
	}
	if _, err := Decrypt(key, make([]byte, 10), nonce); err != ErrCiphertextTooShort {
		t.Errorf("Decrypt() with 10-byte ciphertext error = %v, want %v", err, ErrCiphertextTooShort)
	}
}

func TestEncryptUniqueNonce(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		_, nonce, err := Encrypt(key, []byte("test data"))
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		if seen[string(nonce)] {
			t.Fatalf("Encrypt() produced duplicate nonce on iteration %d", i)
		}
		seen[string(nonce)] = true
	}
}

func TestSecureWipe(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	SecureWipe(data)
	for i, b := range data {
		if b != 0 {
			t.Errorf("SecureWipe() byte[%d] = %d, want 0", i, b)
		}
	}

	// Must not panic on empty or nil slices.
	SecureWipe([]byte{})
	SecureWipe(nil)
}

func BenchmarkDeriveKeyDefault(b *testing.B) {
	salt, err := GenerateSalt()
	if err != nil {
		b.Fatalf("GenerateSalt() error = %v", err)
	}
	params := DefaultParams()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		params.DeriveKey([]byte("benchmark passphrase"), salt)
	}
}
