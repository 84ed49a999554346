package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := DeriveKey("correct horse battery staple")
	plain := []byte("Jan Jansen")

	blob, err := Encrypt(plain, key, DefaultHeader)
	if err != nil {
		t.Fatal(err)
	}

	got, err := Decrypt(blob, key, DefaultHeader)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(plain) {
		t.Errorf("round-trip produced %q, want %q", got, plain)
	}
}

func TestEnvelopeShape(t *testing.T) {
	key := DeriveKey("k")
	blob, err := Encrypt([]byte("data"), key, DefaultHeader)
	if err != nil {
		t.Fatal(err)
	}

	var env map[string]string
	if err := json.Unmarshal([]byte(blob), &env); err != nil {
		t.Fatalf("envelope is not a JSON object: %v", err)
	}
	for _, field := range []string{"nonce", "header", "ciphertext", "tag"} {
		v, ok := env[field]
		if !ok {
			t.Fatalf("envelope missing field %q", field)
		}
		if _, err := base64.StdEncoding.DecodeString(v); err != nil {
			t.Errorf("field %q is not base64: %v", field, err)
		}
	}
	tag, _ := base64.StdEncoding.DecodeString(env["tag"])
	if len(tag) != 16 {
		t.Errorf("tag length %d, want 16", len(tag))
	}
	nonce, _ := base64.StdEncoding.DecodeString(env["nonce"])
	if len(nonce) != 12 {
		t.Errorf("nonce length %d, want 12", len(nonce))
	}
}

func TestDecryptWrongKey(t *testing.T) {
	blob, err := Encrypt([]byte("secret"), DeriveKey("right"), DefaultHeader)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decrypt(blob, DeriveKey("wrong"), DefaultHeader); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	key := DeriveKey("k")
	blob, err := Encrypt([]byte("secret payload"), key, DefaultHeader)
	if err != nil {
		t.Fatal(err)
	}

	var env envelope
	if err := json.Unmarshal([]byte(blob), &env); err != nil {
		t.Fatal(err)
	}
	ct, _ := base64.StdEncoding.DecodeString(env.Ciphertext)
	ct[0] ^= 0xff
	env.Ciphertext = base64.StdEncoding.EncodeToString(ct)
	tampered, _ := json.Marshal(env)

	if _, err := Decrypt(string(tampered), key, DefaultHeader); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestDecryptHeaderMismatch(t *testing.T) {
	key := DeriveKey("k")
	blob, err := Encrypt([]byte("secret"), key, []byte("header-a"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decrypt(blob, key, []byte("header-b")); !errors.Is(err, ErrHeaderMismatch) {
		t.Fatalf("expected ErrHeaderMismatch, got %v", err)
	}
}

// Envelopes from earlier releases carry a 16-byte nonce. Decrypt must
// honor the stored nonce length instead of assuming 12.
func TestDecryptLegacy16ByteNonce(t *testing.T) {
	key := DeriveKey("legacy")
	plain := []byte("oud geheim")

	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, 16)
	if err != nil {
		t.Fatal(err)
	}
	nonce := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		t.Fatal(err)
	}
	sealed := aead.Seal(nil, nonce, plain, DefaultHeader)
	ct, tag := sealed[:len(sealed)-16], sealed[len(sealed)-16:]

	blob, err := json.Marshal(envelope{
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Header:     base64.StdEncoding.EncodeToString(DefaultHeader),
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
		Tag:        base64.StdEncoding.EncodeToString(tag),
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := Decrypt(string(blob), key, DefaultHeader)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(plain) {
		t.Errorf("legacy round-trip produced %q, want %q", got, plain)
	}
}

func TestEncryptRejectsBadKeyLength(t *testing.T) {
	if _, err := Encrypt([]byte("x"), []byte("short"), DefaultHeader); err == nil {
		t.Fatal("5-byte key must be rejected")
	}
}

func TestDeriveKeyAndFingerprint(t *testing.T) {
	key := DeriveKey("wachtwoord")
	if len(key) != 32 {
		t.Fatalf("derived key length %d, want 32", len(key))
	}
	if d := DeriveKey("wachtwoord"); string(d) != string(key) {
		t.Error("derivation is not deterministic")
	}

	fp := Fingerprint(key)
	if len(fp) != 64 {
		t.Errorf("fingerprint length %d, want 64", len(fp))
	}
	if Fingerprint(DeriveKey("anders")) == fp {
		t.Error("distinct keys produced the same fingerprint")
	}
}

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3}
	Zero(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not zeroed", i)
		}
	}
}
