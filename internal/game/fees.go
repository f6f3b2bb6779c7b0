package game

import "time"

// Economics defaults, carried over from the deployed program configuration.
const (
	DefaultHouseFeeBps        = 700 // 7%
	DefaultCancellationFeeBps = 200 // 2% of bet per player
	MaxHouseFeeBps            = 1000
	DefaultResolutionFee      = 1_000_000       // per player, absolute units
	MinBetAmount              = 10_000_000      // 0.01 in whole-coin terms
	MaxBetAmount              = 100_000_000_000 // 100 in whole-coin terms

	DefaultCancelWindow = 1 * time.Hour
	DefaultRevealWindow = 10 * time.Minute
)

// FeeSchedule carries every knob the settlement math depends on. All amounts
// are in the smallest currency unit; bps math uses integer floor division so
// the house never collects more than the configured rate.
type FeeSchedule struct {
	HouseFeeBps            uint64
	CancellationFeeBps     uint64
	ResolutionFeePerPlayer uint64
	MinBet                 uint64
	MaxBet                 uint64
	CancelWindow           time.Duration
	RevealWindow           time.Duration
}

func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		HouseFeeBps:            DefaultHouseFeeBps,
		CancellationFeeBps:     DefaultCancellationFeeBps,
		ResolutionFeePerPlayer: DefaultResolutionFee,
		MinBet:                 MinBetAmount,
		MaxBet:                 MaxBetAmount,
		CancelWindow:           DefaultCancelWindow,
		RevealWindow:           DefaultRevealWindow,
	}
}

// ValidateBet checks a proposed bet amount against the schedule limits.
func (f FeeSchedule) ValidateBet(amount uint64) error {
	if amount < f.MinBet {
		return ErrBetTooLow
	}
	if amount > f.MaxBet {
		return ErrBetTooHigh
	}
	return nil
}

// DepositPerPlayer is what each player locks into escrow: the bet plus their
// share of the pre-funded resolution fee.
func (f FeeSchedule) DepositPerPlayer(bet uint64) uint64 {
	return bet + f.ResolutionFeePerPlayer
}

// Settlement is the exact split of a resolved room's escrow.
type Settlement struct {
	TotalPot           uint64
	HouseFee           uint64
	WinnerPayout       uint64
	ResolutionFeeTotal uint64
}

// Settle computes the payout split for a normally resolved game. The house
// fee floors; any division remainder stays with the winner. The resolution
// fees were pre-funded at deposit time and go to the house regardless of
// outcome, never deducted from the pot.
func (f FeeSchedule) Settle(bet uint64) Settlement {
	totalPot := 2 * bet
	houseFee := totalPot * f.HouseFeeBps / 10_000
	return Settlement{
		TotalPot:           totalPot,
		HouseFee:           houseFee,
		WinnerPayout:       totalPot - houseFee,
		ResolutionFeeTotal: 2 * f.ResolutionFeePerPlayer,
	}
}

// CancelRefund is the per-player outcome of a voluntary cancellation.
type CancelRefund struct {
	RefundPerPlayer uint64
	FeePerPlayer    uint64
}

// Cancellation computes the voluntary-cancel refund: each funded player gets
// their deposit back minus a small fee on the bet that discourages spurious
// cancellation.
func (f FeeSchedule) Cancellation(bet uint64) CancelRefund {
	fee := bet * f.CancellationFeeBps / 10_000
	return CancelRefund{
		RefundPerPlayer: f.DepositPerPlayer(bet) - fee,
		FeePerPlayer:    fee,
	}
}

// TimeoutRefund is the full per-player deposit, returned without any fee when
// a reveal-phase stall is not attributable to the caller.
func (f FeeSchedule) TimeoutRefund(bet uint64) uint64 {
	return f.DepositPerPlayer(bet)
}
