package services

import (
	"bytes"
	"errors"
	"testing"

	"verilotto/internal/models"
)

func TestCommitmentPolicies(t *testing.T) {
	salt := bytes.Repeat([]byte{0x5a}, MinSaltSize)

	for _, name := range []string{"keccak256", "sha256"} {
		t.Run(name, func(t *testing.T) {
			policy, err := CommitmentPolicyByName(name)
			if err != nil {
				t.Fatalf("CommitmentPolicyByName: %v", err)
			}
			if policy.Name() != name {
				t.Fatalf("expected policy %s, got %s", name, policy.Name())
			}

			commitment := policy.Commit(4242, salt)
			if len(commitment) != 2*models.CommitmentSize {
				t.Fatalf("unexpected commitment length %d", len(commitment))
			}
			if err := policy.Verify(commitment, 4242, salt); err != nil {
				t.Errorf("valid reveal rejected: %v", err)
			}
			if err := policy.Verify("0x"+commitment, 4242, salt); err != nil {
				t.Errorf("prefixed commitment rejected: %v", err)
			}

			mismatches := map[string]func() error{
				"wrong number": func() error { return policy.Verify(commitment, 4243, salt) },
				"wrong salt":   func() error { return policy.Verify(commitment, 4242, bytes.Repeat([]byte{1}, MinSaltSize)) },
				"short salt":   func() error { return policy.Verify(commitment, 4242, salt[:MinSaltSize-1]) },
				"malformed":    func() error { return policy.Verify("nothex", 4242, salt) },
			}
			for label, verify := range mismatches {
				if err := verify(); !errors.Is(err, models.ErrCommitmentMismatch) {
					t.Errorf("%s: expected COMMITMENT_MISMATCH, got %v", label, err)
				}
			}
		})
	}

	t.Run("schemes disagree", func(t *testing.T) {
		k := Keccak256Commitment().Commit(1000, salt)
		s := SHA256Commitment().Commit(1000, salt)
		if k == s {
			t.Fatal("keccak256 and sha256 produced the same commitment")
		}
		if err := SHA256Commitment().Verify(k, 1000, salt); err == nil {
			t.Fatal("sha256 accepted a keccak256 commitment")
		}
	})

	t.Run("default and unknown", func(t *testing.T) {
		p, err := CommitmentPolicyByName("")
		if err != nil || p.Name() != "keccak256" {
			t.Fatalf("expected keccak256 default, got %v, %v", p, err)
		}
		if _, err := CommitmentPolicyByName("md5"); err == nil {
			t.Fatal("expected unknown scheme to fail")
		}
	})
}

func TestSalt(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	if len(salt) < MinSaltSize {
		t.Fatalf("salt too short: %d", len(salt))
	}

	decoded, err := DecodeSalt("0x0a0B")
	if err != nil || !bytes.Equal(decoded, []byte{0x0a, 0x0b}) {
		t.Errorf("unexpected decode %x, %v", decoded, err)
	}
	if decoded, err := DecodeSalt(""); err != nil || decoded != nil {
		t.Errorf("expected nil salt for empty input, got %x, %v", decoded, err)
	}
	if _, err := DecodeSalt("0xzz"); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}
