package game

import (
	"crypto/sha256"
	"encoding/binary"
)

// Outcome is the result of resolving a room from two valid reveals.
//
// CoinResult is nil in the tie-break branch: when both players picked the
// same side the flip itself cannot discriminate, so the secondary hash picks
// the winner and clients are shown a distinct outcome kind.
type Outcome struct {
	CoinResult *Side
	Winner     string
	TieBreak   bool
}

// mixSecrets lays out both secrets as 8 LE bytes each, the shared entropy for
// the coin flip. Both secrets were committed before either was revealed, so
// neither player can bias this mix.
func mixSecrets(secretA, secretB uint64) [16]byte {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], secretA)
	binary.LittleEndian.PutUint64(buf[8:16], secretB)
	return buf
}

// Resolve derives the coin result and winner from two revealed secrets. It is
// a pure function: identical inputs always yield the identical outcome, and
// exactly one of playerA/playerB wins.
func Resolve(choiceA Side, secretA uint64, choiceB Side, secretB uint64, playerA, playerB string) Outcome {
	mix := mixSecrets(secretA, secretB)
	mixHash := sha256.Sum256(mix[:])

	coin := Heads
	if mixHash[0]&1 == 1 {
		coin = Tails
	}

	if choiceA != choiceB {
		// Two distinct binary choices against a binary result: exactly one
		// player matches.
		winner := playerB
		if choiceA == coin {
			winner = playerA
		}
		return Outcome{CoinResult: &coin, Winner: winner}
	}

	// Both players picked the same side. Break the tie with a second hash
	// that also binds the player identities.
	data := make([]byte, 0, len(mix)+len(playerA)+len(playerB))
	data = append(data, mix[:]...)
	data = append(data, playerA...)
	data = append(data, playerB...)
	tieHash := sha256.Sum256(data)

	winner := playerA
	if tieHash[0]&1 == 1 {
		winner = playerB
	}
	return Outcome{Winner: winner, TieBreak: true}
}
