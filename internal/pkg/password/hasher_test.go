package password

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func testHashers() map[string]Hasher {
	return map[string]Hasher{
		"bcrypt": NewBcryptHasher(bcrypt.MinCost),
		"argon2id": NewArgon2Hasher(&Argon2Params{
			Memory:      8 * 1024,
			Iterations:  1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		}),
	}
}

func TestHasher_RoundTrip(t *testing.T) {
	for name, h := range testHashers() {
		t.Run(name, func(t *testing.T) {
			for _, pw := range []string{"secret1", "correct horse battery staple", "ünïcødé-pw"} {
				digest, err := h.Hash(pw)
				if err != nil {
					t.Fatalf("hash: %v", err)
				}
				if digest == pw {
					t.Fatalf("digest equals plaintext")
				}
				ok, err := h.Verify(pw, digest)
				if err != nil {
					t.Fatalf("verify: %v", err)
				}
				if !ok {
					t.Fatalf("expected %q to verify", pw)
				}
			}
		})
	}
}

func TestHasher_SaltedDigestsDiffer(t *testing.T) {
	for name, h := range testHashers() {
		t.Run(name, func(t *testing.T) {
			d1, _ := h.Hash("secret1")
			d2, _ := h.Hash("secret1")
			if d1 == d2 {
				t.Fatalf("expected distinct digests, got %s twice", d1)
			}
			for _, d := range []string{d1, d2} {
				if ok, err := h.Verify("secret1", d); err != nil || !ok {
					t.Fatalf("digest %s did not verify: %v", d, err)
				}
			}
		})
	}
}

func TestHasher_WrongPassword(t *testing.T) {
	for name, h := range testHashers() {
		t.Run(name, func(t *testing.T) {
			d, _ := h.Hash("secret1")
			ok, err := h.Verify("secret2", d)
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
			if ok {
				t.Fatalf("wrong password verified")
			}
		})
	}
}

func TestArgon2Hasher_Format(t *testing.T) {
	d, err := NewArgon2Hasher(nil).Hash("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(d, "$argon2id$v=19$m=65536,t=3,p=2$") {
		t.Fatalf("unexpected digest format: %s", d)
	}
}

func TestArgon2Hasher_RejectsGarbage(t *testing.T) {
	h := NewArgon2Hasher(nil)
	for _, d := range []string{"", "plain", "$argon2i$v=19$m=1,t=1,p=1$a$b", "$argon2id$v=1$m=1,t=1,p=1$a$b"} {
		if _, err := h.Verify("secret1", d); err == nil {
			t.Fatalf("expected error for digest %q", d)
		}
	}
}

func TestBcryptHasher_ClampsCost(t *testing.T) {
	if h := NewBcryptHasher(1); h.cost != bcrypt.MinCost {
		t.Fatalf("expected min cost, got %d", h.cost)
	}
	if h := NewBcryptHasher(0); h.cost != bcrypt.DefaultCost {
		t.Fatalf("expected default cost, got %d", h.cost)
	}
	if h := NewBcryptHasher(99); h.cost != bcrypt.MaxCost {
		t.Fatalf("expected max cost, got %d", h.cost)
	}
}

func TestHasher_MaxLength(t *testing.T) {
	if got := NewBcryptHasher(bcrypt.MinCost).MaxLength(); got != BcryptMaxLength {
		t.Fatalf("expected bcrypt limit %d, got %d", BcryptMaxLength, got)
	}
	if _, err := NewBcryptHasher(bcrypt.MinCost).Hash(strings.Repeat("p", BcryptMaxLength+1)); err == nil {
		t.Fatalf("bcrypt should refuse input over its limit")
	}
	if _, err := NewBcryptHasher(bcrypt.MinCost).Hash(strings.Repeat("p", BcryptMaxLength)); err != nil {
		t.Fatalf("bcrypt should accept input at its limit: %v", err)
	}

	h := testHashers()["argon2id"]
	if h.MaxLength() != 0 {
		t.Fatalf("argon2id is unbounded, got %d", h.MaxLength())
	}
	if _, err := h.Hash(strings.Repeat("p", 200)); err != nil {
		t.Fatalf("argon2id long input: %v", err)
	}
}

func TestNew(t *testing.T) {
	if _, ok := mustNew(t, "").(*BcryptHasher); !ok {
		t.Fatalf("empty name should select bcrypt")
	}
	if _, ok := mustNew(t, AlgorithmArgon2).(*Argon2Hasher); !ok {
		t.Fatalf("argon2id not selected")
	}
	if _, err := New("md5", 0); err == nil {
		t.Fatalf("expected error for unknown hasher")
	}
}

func mustNew(t *testing.T, name string) Hasher {
	t.Helper()
	h, err := New(name, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("new %q: %v", name, err)
	}
	return h
}
