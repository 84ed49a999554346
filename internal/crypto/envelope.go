// Package crypto implements the authenticated-encryption envelope used to
// make redacted PDF occurrences recoverable by a key holder.
//
// The envelope is a compact JSON string with base64 fields:
//
//	{"nonce":"...","header":"...","ciphertext":"...","tag":"..."}
//
// Ciphertext and the 16-byte GCM tag are carried separately so envelopes
// produced by earlier releases of the service parse unchanged. New envelopes
// use a 12-byte nonce; decryption honors whatever nonce length the envelope
// carries (legacy envelopes use 16).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DefaultHeader is the associated-data value bound to every occurrence
// envelope the PDF engine produces.
var DefaultHeader = []byte("header")

// ErrAuthentication is returned when the GCM tag does not verify:
// the ciphertext was tampered with or the key is wrong.
var ErrAuthentication = errors.New("crypto: authentication failed")

// ErrHeaderMismatch is returned when the associated data stored in the
// envelope does not match the value supplied at decryption time.
var ErrHeaderMismatch = errors.New("crypto: AAD mismatch, wrong header supplied")

const gcmTagSize = 16

// envelope is the serialized AEAD container.
type envelope struct {
	Nonce      string `json:"nonce"`
	Header     string `json:"header"`
	Ciphertext string `json:"ciphertext"`
	Tag        string `json:"tag"`
}

// Encrypt seals data under key with the given associated-data header and
// returns the JSON envelope. A fresh random nonce is drawn on every call;
// nonces are never reused for a given key. Key must be 16, 24 or 32 bytes.
func Encrypt(data, key, header []byte) (string, error) {
	aead, err := newGCM(key, 0)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: draw nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, data, header)
	ct, tag := sealed[:len(sealed)-gcmTagSize], sealed[len(sealed)-gcmTagSize:]

	blob, err := json.Marshal(envelope{
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Header:     base64.StdEncoding.EncodeToString(header),
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
		Tag:        base64.StdEncoding.EncodeToString(tag),
	})
	if err != nil {
		return "", fmt.Errorf("crypto: marshal envelope: %w", err)
	}
	return string(blob), nil
}

// Decrypt reverses Encrypt. It fails with ErrHeaderMismatch when the
// envelope's associated data differs from header, and with
// ErrAuthentication when the tag does not verify.
func Decrypt(blob string, key, header []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal([]byte(blob), &env); err != nil {
		return nil, fmt.Errorf("crypto: parse envelope: %w", err)
	}

	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode nonce: %w", err)
	}
	aad, err := base64.StdEncoding.DecodeString(env.Header)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode header: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode ciphertext: %w", err)
	}
	tag, err := base64.StdEncoding.DecodeString(env.Tag)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode tag: %w", err)
	}
	if len(tag) != gcmTagSize {
		return nil, ErrAuthentication
	}

	if !ConstantTimeEquals(aad, header) {
		return nil, ErrHeaderMismatch
	}

	aead, err := newGCM(key, len(nonce))
	if err != nil {
		return nil, err
	}

	plain, err := aead.Open(nil, nonce, append(ct, tag...), header)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plain, nil
}

// newGCM builds an AES-GCM AEAD for the key. nonceSize 0 selects the
// standard 12-byte size.
func newGCM(key []byte, nonceSize int) (cipher.AEAD, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("crypto: key must be 16, 24 or 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	if nonceSize == 0 {
		return cipher.NewGCM(block)
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

// DeriveKey hashes an arbitrary-length passphrase down to a 32-byte AEAD key.
func DeriveKey(passphrase string) []byte {
	sum := sha256.Sum256([]byte(passphrase))
	return sum[:]
}

// Fingerprint returns the hex SHA-256 digest of data (64 characters).
// Informational only: it identifies key material for display and fast
// wrong-key diagnostics, it does not gate decryption.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FingerprintString is Fingerprint over the UTF-8 bytes of s.
func FingerprintString(s string) string {
	return Fingerprint([]byte(s))
}

// ConstantTimeEquals compares two byte slices in constant time.
func ConstantTimeEquals(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Zero overwrites key material in place. Best-effort: Go gives no
// guarantee the memory was not copied earlier.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
