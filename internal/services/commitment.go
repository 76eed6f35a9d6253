package services

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"verilotto/internal/models"
)

// MinSaltSize is the shortest salt accepted when opening a commitment.
const MinSaltSize = 16

// CommitmentPolicy binds a winning number before registration closes and
// checks the reveal against it at draw time.
type CommitmentPolicy interface {
	Name() string
	// Commit returns the hex commitment to number under salt.
	Commit(number int, salt []byte) string
	// Verify returns a COMMITMENT_MISMATCH error unless (number, salt) opens commitment.
	Verify(commitment string, number int, salt []byte) error
}

// hashCommitment commits to H(uint16be(number) || salt).
type hashCommitment struct {
	name string
	sum  func([]byte) []byte
}

// Keccak256Commitment is compatible with keccak256(abi.encodePacked(uint16(n), salt)).
func Keccak256Commitment() CommitmentPolicy {
	return hashCommitment{name: "keccak256", sum: func(b []byte) []byte { return crypto.Keccak256(b) }}
}

// SHA256Commitment commits with a SHA-256 digest.
func SHA256Commitment() CommitmentPolicy {
	return hashCommitment{name: "sha256", sum: func(b []byte) []byte {
		d := sha256.Sum256(b)
		return d[:]
	}}
}

// CommitmentPolicyByName resolves a configured scheme name.
func CommitmentPolicyByName(name string) (CommitmentPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "keccak256", "":
		return Keccak256Commitment(), nil
	case "sha256":
		return SHA256Commitment(), nil
	default:
		return nil, fmt.Errorf("unknown commitment scheme %q", name)
	}
}

func (h hashCommitment) Name() string { return h.name }

func (h hashCommitment) Commit(number int, salt []byte) string {
	return hex.EncodeToString(h.digest(number, salt))
}

func (h hashCommitment) Verify(commitment string, number int, salt []byte) error {
	want, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(commitment), "0x"))
	if err != nil || len(want) != models.CommitmentSize {
		return models.NewError(models.CodeCommitmentMismatch, "stored commitment is malformed")
	}
	if len(salt) < MinSaltSize {
		return models.NewError(models.CodeCommitmentMismatch, fmt.Sprintf("reveal salt must be at least %d bytes", MinSaltSize))
	}
	if subtle.ConstantTimeCompare(want, h.digest(number, salt)) != 1 {
		return models.NewError(models.CodeCommitmentMismatch, "reveal does not open the round commitment")
	}
	return nil
}

func (h hashCommitment) digest(number int, salt []byte) []byte {
	buf := make([]byte, 2+len(salt))
	binary.BigEndian.PutUint16(buf, uint16(number))
	copy(buf[2:], salt)
	return h.sum(buf)
}

// NewSalt returns a random salt of MinSaltSize*2 bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, MinSaltSize*2)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("read random salt: %w", err)
	}
	return salt, nil
}

// DecodeSalt parses a hex salt, with or without 0x prefix. Empty input yields nil.
func DecodeSalt(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, nil
	}
	salt, err := hex.DecodeString(s)
	if err != nil {
		return nil, models.WrapError(models.CodeInvalidInput, "salt must be hex encoded", err)
	}
	return salt, nil
}
