package game

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
)

// Side is a coin face. The byte values are part of the commitment wire
// format and must not change.
type Side uint8

const (
	Heads Side = 0
	Tails Side = 1
)

func (s Side) String() string {
	if s == Heads {
		return "heads"
	}
	return "tails"
}

// ParseSide maps the client-facing strings onto Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "heads":
		return Heads, nil
	case "tails":
		return Tails, nil
	}
	return 0, fmt.Errorf("unknown coin side %q", s)
}

// Commitment is the double-SHA256 digest binding a player to a hidden
// choice+secret before reveal.
type Commitment [32]byte

// IsZero reports whether the commitment is unset. An all-zero commitment is
// never a valid digest input, so the zero value doubles as "absent".
func (c Commitment) IsZero() bool { return c == Commitment{} }

func (c Commitment) String() string { return hex.EncodeToString(c[:]) }

// MarshalJSON renders commitments as hex, with the unset zero value as "".
func (c Commitment) MarshalJSON() ([]byte, error) {
	if c.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + c.String() + `"`), nil
}

func (c *Commitment) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*c = Commitment{}
		return nil
	}
	parsed, err := ParseCommitment(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MarshalJSON renders sides as their client-facing strings.
func (s Side) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Side) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseSide(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseCommitment decodes a 64-char hex string into a Commitment.
func ParseCommitment(s string) (Commitment, error) {
	var c Commitment
	b, err := hex.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("decode commitment: %w", err)
	}
	if len(b) != len(c) {
		return c, fmt.Errorf("commitment must be 32 bytes, got %d", len(b))
	}
	copy(c[:], b)
	return c, nil
}

// commitmentPreimage builds the fixed 16-byte layout hashed into a
// commitment: choice byte, 7 bytes zero padding, secret as 8 LE bytes.
// Independently implemented clients must agree on this byte-for-byte.
func commitmentPreimage(choice Side, secret uint64) [16]byte {
	var buf [16]byte
	buf[0] = byte(choice)
	binary.LittleEndian.PutUint64(buf[8:], secret)
	return buf
}

// Commit produces the commitment for a choice+secret pair: the preimage is
// SHA-256 hashed twice.
func Commit(choice Side, secret uint64) Commitment {
	buf := commitmentPreimage(choice, secret)
	first := sha256.Sum256(buf[:])
	return sha256.Sum256(first[:])
}

// VerifyCommitment recomputes the commitment for the revealed pair and
// compares it constant-time against the stored one.
func VerifyCommitment(commitment Commitment, choice Side, secret uint64) bool {
	want := Commit(choice, secret)
	return subtle.ConstantTimeCompare(commitment[:], want[:]) == 1
}

// IsWeakSecret rejects degenerate secrets: trivially guessable values and
// sentinels used elsewhere in the protocol.
func IsWeakSecret(secret uint64) bool {
	return secret == 0 || secret == 1 || secret == math.MaxUint64
}

// GenerateSecret draws a uniformly random 64-bit secret from crypto/rand,
// redrawing on weak values.
func GenerateSecret() (uint64, error) {
	var b [8]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, fmt.Errorf("read random secret: %w", err)
		}
		secret := binary.LittleEndian.Uint64(b[:])
		if !IsWeakSecret(secret) {
			return secret, nil
		}
	}
}
