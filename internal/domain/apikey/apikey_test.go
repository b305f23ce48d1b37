package apikey

import (
	"strings"
	"testing"
)

func TestHash_Format(t *testing.T) {
	t.Parallel()

	h := Hash("my-secret")
	if !strings.HasPrefix(h, "sha256:") {
		t.Errorf("Hash() = %q, want sha256: prefix", h)
	}
	if len(h) != len("sha256:")+64 {
		t.Errorf("Hash() length = %d, want 64 hex digits after prefix", len(h))
	}
	if h != Hash("my-secret") {
		t.Error("Hash() not deterministic")
	}
	if h == Hash("other-secret") {
		t.Error("Hash() collided for distinct inputs")
	}
}

func TestDetectHashType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stored string
		want   string
	}{
		{name: "sha256 prefixed", stored: Hash("k"), want: "sha256"},
		{name: "argon2id phc", stored: "$argon2id$v=19$m=47104,t=1,p=1$c2FsdA$aGFzaA", want: "argon2id"},
		{name: "bare hex digest", stored: strings.Repeat("ab", 32), want: "sha256"},
		{name: "plaintext", stored: "not-a-hash", want: "unknown"},
		{name: "empty", stored: "", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := DetectHashType(tt.stored); got != tt.want {
				t.Errorf("DetectHashType(%q) = %q, want %q", tt.stored, got, tt.want)
			}
		})
	}
}

func TestVerify_SHA256(t *testing.T) {
	t.Parallel()

	stored := Hash("correct-key")

	if ok, err := Verify("correct-key", stored); err != nil || !ok {
		t.Errorf("Verify(correct) = %v, %v; want true, nil", ok, err)
	}
	if ok, err := Verify("wrong-key", stored); err != nil || ok {
		t.Errorf("Verify(wrong) = %v, %v; want false, nil", ok, err)
	}
}

func TestVerify_Argon2id(t *testing.T) {
	t.Parallel()

	stored, err := HashArgon2id("correct-key")
	if err != nil {
		t.Fatalf("HashArgon2id() error: %v", err)
	}
	if !strings.HasPrefix(stored, "$argon2id$") {
		t.Fatalf("HashArgon2id() = %q, want PHC format", stored)
	}

	if ok, err := Verify("correct-key", stored); err != nil || !ok {
		t.Errorf("Verify(correct) = %v, %v; want true, nil", ok, err)
	}
	if ok, err := Verify("wrong-key", stored); err != nil || ok {
		t.Errorf("Verify(wrong) = %v, %v; want false, nil", ok, err)
	}
}

func TestVerify_MalformedArgon2id(t *testing.T) {
	t.Parallel()

	// A garbage PHC string must produce an error, never a panic.
	if ok, err := Verify("key", "$argon2id$garbage"); err == nil || ok {
		t.Errorf("Verify(malformed) = %v, %v; want false with error", ok, err)
	}
}

func TestVerify_UnknownHashType(t *testing.T) {
	t.Parallel()

	if ok, err := Verify("key", "plaintext-not-a-hash"); err == nil || ok {
		t.Errorf("Verify(unknown type) = %v, %v; want false with error", ok, err)
	}
}

func TestKeyring_Resolve(t *testing.T) {
	t.Parallel()

	kr := NewKeyring([]Entry{
		{Hash: Hash("key-alpha"), Identity: "alpha"},
		{Hash: Hash("key-beta"), Identity: "beta"},
	})

	if id, ok := kr.Resolve("key-beta"); !ok || id != "beta" {
		t.Errorf("Resolve(key-beta) = %q, %v; want beta, true", id, ok)
	}
	if id, ok := kr.Resolve("key-alpha"); !ok || id != "alpha" {
		t.Errorf("Resolve(key-alpha) = %q, %v; want alpha, true", id, ok)
	}
	if _, ok := kr.Resolve("unknown-key"); ok {
		t.Error("Resolve(unknown) = true, want false")
	}
}

func TestKeyring_Empty(t *testing.T) {
	t.Parallel()

	var nilRing *Keyring
	if !nilRing.Empty() {
		t.Error("nil keyring Empty() = false, want true")
	}
	if !NewKeyring(nil).Empty() {
		t.Error("zero-entry keyring Empty() = false, want true")
	}
	if NewKeyring([]Entry{{Hash: Hash("k"), Identity: "i"}}).Empty() {
		t.Error("populated keyring Empty() = true, want false")
	}

	if _, ok := nilRing.Resolve("anything"); ok {
		t.Error("nil keyring Resolve() = true, want false")
	}
}
