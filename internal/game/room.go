package game

import (
	"sync"
	"time"
)

// Status is the room lifecycle phase. Transitions are monotonic forward,
// except the Cancelled path which is reachable from any non-terminal phase.
type Status string

const (
	StatusWaitingForPlayer Status = "WAITING_FOR_PLAYER"
	StatusPlayersReady     Status = "PLAYERS_READY"
	StatusRevealing        Status = "REVEALING"
	StatusResolved         Status = "RESOLVED"
	StatusCancelled        Status = "CANCELLED"
)

func (s Status) String() string { return string(s) }

// Terminal reports whether the room is immutable.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

// HouseAccount receives house fees, resolution fees and cancellation fees.
const HouseAccount = "house"

type TransferKind string

const (
	TransferWinnerPayout    TransferKind = "winner_payout"
	TransferHouseFee        TransferKind = "house_fee"
	TransferResolutionFee   TransferKind = "resolution_fee"
	TransferRefund          TransferKind = "refund"
	TransferCancellationFee TransferKind = "cancellation_fee"
)

// Transfer is an escrow outflow produced by a settlement path. The sum of a
// room's transfers over its lifetime exactly equals its lifetime deposits.
type Transfer struct {
	To     string       `json:"to"`
	Amount uint64       `json:"amount"`
	Kind   TransferKind `json:"kind"`
}

// Room is one coin-flip game: two escrowed bets, two commitments, two
// reveals, one winner. All mutating methods serialize on the internal mutex
// and bump Version, so within one room exactly one of two racing intents
// wins and the loser gets a protocol error, never a silent overwrite.
type Room struct {
	mu sync.Mutex

	Version uint64 `json:"version"`
	GameID  uint64 `json:"game_id"`
	Creator string `json:"creator"`

	PlayerA string `json:"player_a"`
	PlayerB string `json:"player_b,omitempty"`

	BetAmount uint64      `json:"bet_amount"`
	Fees      FeeSchedule `json:"-"`

	CommitmentA Commitment `json:"commitment_a,omitempty"`
	CommitmentB Commitment `json:"commitment_b,omitempty"`

	ChoiceA *Side  `json:"choice_a,omitempty"`
	ChoiceB *Side  `json:"choice_b,omitempty"`
	SecretA uint64 `json:"secret_a,omitempty"`
	SecretB uint64 `json:"secret_b,omitempty"`

	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	RevealStartedAt time.Time  `json:"reveal_started_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`

	Winner     string `json:"winner,omitempty"`
	CoinResult *Side  `json:"coin_result,omitempty"`
	TieBreak   bool   `json:"tie_break,omitempty"`

	HouseFeeCollected      uint64 `json:"house_fee_collected"`
	ResolutionFeeCollected uint64 `json:"resolution_fee_collected"`

	// Escrow is derived state: always reconstructable from the fields above.
	Escrow uint64 `json:"escrow"`
}

// NewRoom creates a room with the creator's deposit already locked. The
// caller is responsible for having debited the creator by DepositPerPlayer.
func NewRoom(creator string, gameID uint64, betAmount uint64, fees FeeSchedule, now time.Time) *Room {
	return &Room{
		Version:   1,
		GameID:    gameID,
		Creator:   creator,
		PlayerA:   creator,
		BetAmount: betAmount,
		Fees:      fees,
		Status:    StatusWaitingForPlayer,
		CreatedAt: now,
		Escrow:    fees.DepositPerPlayer(betAmount),
	}
}

func (r *Room) isParticipant(player string) bool {
	return player == r.PlayerA || (r.PlayerB != "" && player == r.PlayerB)
}

// Join locks the second player's deposit and moves the room to PlayersReady.
func (r *Room) Join(player string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Status != StatusWaitingForPlayer {
		if r.isParticipant(player) {
			return ErrAlreadyJoined
		}
		return invalidStatus(r.Status, StatusWaitingForPlayer)
	}
	if player == r.PlayerA {
		return ErrSelfJoin
	}

	r.PlayerB = player
	r.Status = StatusPlayersReady
	r.Escrow += r.Fees.DepositPerPlayer(r.BetAmount)
	r.Version++
	return nil
}

// MakeCommitment stores a player's commitment hash, write-once. When both
// are present the room advances to the revealing phase.
func (r *Room) MakeCommitment(player string, commitment Commitment, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Status != StatusPlayersReady {
		return invalidStatus(r.Status, StatusPlayersReady)
	}
	if !r.isParticipant(player) {
		return ErrUnauthorized
	}
	if commitment.IsZero() {
		return ErrInvalidCommitment
	}

	switch player {
	case r.PlayerA:
		if !r.CommitmentA.IsZero() {
			return ErrAlreadyCommitted
		}
		r.CommitmentA = commitment
	default:
		if !r.CommitmentB.IsZero() {
			return ErrAlreadyCommitted
		}
		r.CommitmentB = commitment
	}

	if !r.CommitmentA.IsZero() && !r.CommitmentB.IsZero() {
		r.Status = StatusRevealing
		r.RevealStartedAt = now
	}
	r.Version++
	return nil
}

// RevealChoice verifies a player's reveal against their stored commitment.
// The second successful reveal settles the room synchronously and returns
// the escrow outflows.
func (r *Room) RevealChoice(player string, choice Side, secret uint64, now time.Time) ([]Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Status != StatusRevealing {
		if r.Status == StatusResolved {
			return nil, ErrAlreadyResolved
		}
		return nil, invalidStatus(r.Status, StatusRevealing)
	}
	if !r.isParticipant(player) {
		return nil, ErrUnauthorized
	}
	if IsWeakSecret(secret) {
		return nil, ErrWeakSecret
	}

	switch player {
	case r.PlayerA:
		if r.ChoiceA != nil {
			return nil, ErrAlreadyRevealed
		}
		if !VerifyCommitment(r.CommitmentA, choice, secret) {
			return nil, ErrCommitmentMismatch
		}
		c := choice
		r.ChoiceA, r.SecretA = &c, secret
	default:
		if r.ChoiceB != nil {
			return nil, ErrAlreadyRevealed
		}
		if !VerifyCommitment(r.CommitmentB, choice, secret) {
			return nil, ErrCommitmentMismatch
		}
		c := choice
		r.ChoiceB, r.SecretB = &c, secret
	}
	r.Version++

	if r.ChoiceA == nil || r.ChoiceB == nil {
		return nil, nil
	}
	return r.settle(now), nil
}

// settle runs the resolution engine and fee calculator over two valid
// reveals. Caller holds the mutex and has checked both reveals are present.
func (r *Room) settle(now time.Time) []Transfer {
	outcome := Resolve(*r.ChoiceA, r.SecretA, *r.ChoiceB, r.SecretB, r.PlayerA, r.PlayerB)
	s := r.Fees.Settle(r.BetAmount)

	r.Winner = outcome.Winner
	r.CoinResult = outcome.CoinResult
	r.TieBreak = outcome.TieBreak
	r.HouseFeeCollected = s.HouseFee
	r.ResolutionFeeCollected = s.ResolutionFeeTotal
	r.Status = StatusResolved
	t := now
	r.ResolvedAt = &t

	transfers := []Transfer{
		{To: outcome.Winner, Amount: s.WinnerPayout, Kind: TransferWinnerPayout},
		{To: HouseAccount, Amount: s.HouseFee, Kind: TransferHouseFee},
		{To: HouseAccount, Amount: s.ResolutionFeeTotal, Kind: TransferResolutionFee},
	}
	r.Escrow -= s.WinnerPayout + s.HouseFee + s.ResolutionFeeTotal
	r.Version++
	return transfers
}

// Cancel refunds every funded deposit minus the cancellation fee. Only a
// participant may cancel, only after the cancel window, and a cancel racing
// a concurrent resolution loses deterministically.
func (r *Room) Cancel(caller string, now time.Time) ([]Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isParticipant(caller) {
		return nil, ErrUnauthorized
	}
	if r.Status.Terminal() {
		return nil, ErrAlreadyResolved
	}
	if now.Before(r.CreatedAt.Add(r.Fees.CancelWindow)) {
		return nil, ErrTimeoutNotReached
	}

	refund := r.Fees.Cancellation(r.BetAmount)
	transfers := []Transfer{
		{To: r.PlayerA, Amount: refund.RefundPerPlayer, Kind: TransferRefund},
		{To: HouseAccount, Amount: refund.FeePerPlayer, Kind: TransferCancellationFee},
	}
	if r.PlayerB != "" {
		transfers = append(transfers,
			Transfer{To: r.PlayerB, Amount: refund.RefundPerPlayer, Kind: TransferRefund},
			Transfer{To: HouseAccount, Amount: refund.FeePerPlayer, Kind: TransferCancellationFee},
		)
	}
	for _, t := range transfers {
		r.Escrow -= t.Amount
	}
	r.Status = StatusCancelled
	r.Version++
	return transfers, nil
}

// HandleTimeout refunds both players in full when the revealing phase has
// stalled past its deadline with at least one reveal missing. Permissionless:
// the stall is not attributable to the caller, so no fee is charged.
func (r *Room) HandleTimeout(now time.Time) ([]Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Status != StatusRevealing {
		if r.Status == StatusResolved {
			return nil, ErrAlreadyResolved
		}
		return nil, invalidStatus(r.Status, StatusRevealing)
	}
	if r.ChoiceA != nil && r.ChoiceB != nil {
		return nil, ErrBothRevealed
	}
	if now.Before(r.RevealStartedAt.Add(r.Fees.RevealWindow)) {
		return nil, ErrTimeoutNotReached
	}

	refund := r.Fees.TimeoutRefund(r.BetAmount)
	transfers := []Transfer{
		{To: r.PlayerA, Amount: refund, Kind: TransferRefund},
		{To: r.PlayerB, Amount: refund, Kind: TransferRefund},
	}
	r.Escrow -= 2 * refund
	r.Status = StatusCancelled
	r.Version++
	return transfers, nil
}

// ResolveManual forces settlement when both reveals are present but the
// auto-resolution did not fire. Permissionless and idempotent: a second call
// after success fails with ErrAlreadyResolved, never a double payout.
func (r *Room) ResolveManual(now time.Time) ([]Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Status == StatusResolved {
		return nil, ErrAlreadyResolved
	}
	if r.Status != StatusRevealing {
		return nil, invalidStatus(r.Status, StatusRevealing)
	}
	if r.ChoiceA == nil || r.ChoiceB == nil {
		return nil, ErrNotReadyToResolve
	}
	return r.settle(now), nil
}

// Snapshot returns a copy safe to serialize while the room keeps mutating.
func (r *Room) Snapshot() Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := Room{}
	snap.copyFrom(r)
	return snap
}

func (dst *Room) copyFrom(src *Room) {
	dst.Version = src.Version
	dst.GameID = src.GameID
	dst.Creator = src.Creator
	dst.PlayerA = src.PlayerA
	dst.PlayerB = src.PlayerB
	dst.BetAmount = src.BetAmount
	dst.Fees = src.Fees
	dst.CommitmentA = src.CommitmentA
	dst.CommitmentB = src.CommitmentB
	dst.ChoiceA = src.ChoiceA
	dst.ChoiceB = src.ChoiceB
	dst.SecretA = src.SecretA
	dst.SecretB = src.SecretB
	dst.Status = src.Status
	dst.CreatedAt = src.CreatedAt
	dst.RevealStartedAt = src.RevealStartedAt
	dst.ResolvedAt = src.ResolvedAt
	dst.Winner = src.Winner
	dst.CoinResult = src.CoinResult
	dst.TieBreak = src.TieBreak
	dst.HouseFeeCollected = src.HouseFeeCollected
	dst.ResolutionFeeCollected = src.ResolutionFeeCollected
	dst.Escrow = src.Escrow
}
