package game

import "testing"

func TestSettle_FundConservation(t *testing.T) {
	// Pot splits must always sum back to the pot, whatever the rate.
	bets := []uint64{1, 1000, MinBetAmount, 4294967295, MaxBetAmount}
	rates := []uint64{0, 300, 700, 1000}

	for _, bet := range bets {
		for _, bps := range rates {
			fees := DefaultFeeSchedule()
			fees.HouseFeeBps = bps

			s := fees.Settle(bet)

			if s.TotalPot != 2*bet {
				t.Errorf("Settle(%d) pot = %d, want %d", bet, s.TotalPot, 2*bet)
			}
			if s.WinnerPayout+s.HouseFee != s.TotalPot {
				t.Errorf("Settle(%d) at %d bps: payout %d + fee %d != pot %d",
					bet, bps, s.WinnerPayout, s.HouseFee, s.TotalPot)
			}
			if want := s.TotalPot * bps / 10_000; s.HouseFee != want {
				t.Errorf("Settle(%d) at %d bps: fee = %d, want %d", bet, bps, s.HouseFee, want)
			}
		}
	}
}

func TestSettle_Defaults(t *testing.T) {
	fees := DefaultFeeSchedule()
	s := fees.Settle(100_000_000)

	if s.TotalPot != 200_000_000 {
		t.Errorf("pot = %d, want 200000000", s.TotalPot)
	}
	if s.HouseFee != 14_000_000 {
		t.Errorf("house fee = %d, want 14000000", s.HouseFee)
	}
	if s.WinnerPayout != 186_000_000 {
		t.Errorf("payout = %d, want 186000000", s.WinnerPayout)
	}
	if s.ResolutionFeeTotal != 2_000_000 {
		t.Errorf("resolution fee = %d, want 2000000", s.ResolutionFeeTotal)
	}
}

func TestSettle_FloorRemainderToWinner(t *testing.T) {
	// Pot 2, 700 bps: the exact fee would be 0.14 which floors to zero, so the
	// whole pot goes to the winner.
	fees := DefaultFeeSchedule()
	s := fees.Settle(1)

	if s.HouseFee != 0 {
		t.Errorf("house fee = %d, want 0", s.HouseFee)
	}
	if s.WinnerPayout != 2 {
		t.Errorf("payout = %d, want 2", s.WinnerPayout)
	}
}

func TestValidateBet(t *testing.T) {
	fees := DefaultFeeSchedule()

	tests := []struct {
		name    string
		amount  uint64
		wantErr error
	}{
		{"Below minimum", MinBetAmount - 1, ErrBetTooLow},
		{"At minimum", MinBetAmount, nil},
		{"At maximum", MaxBetAmount, nil},
		{"Above maximum", MaxBetAmount + 1, ErrBetTooHigh},
		{"Zero", 0, ErrBetTooLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := fees.ValidateBet(tt.amount); err != tt.wantErr {
				t.Errorf("ValidateBet(%d) = %v, want %v", tt.amount, err, tt.wantErr)
			}
		})
	}
}

func TestDepositPerPlayer(t *testing.T) {
	fees := DefaultFeeSchedule()
	if got := fees.DepositPerPlayer(MinBetAmount); got != MinBetAmount+DefaultResolutionFee {
		t.Errorf("DepositPerPlayer() = %d, want %d", got, MinBetAmount+DefaultResolutionFee)
	}
}

func TestCancellation(t *testing.T) {
	fees := DefaultFeeSchedule()
	bet := uint64(50_000_000)

	refund := fees.Cancellation(bet)

	wantFee := bet * DefaultCancellationFeeBps / 10_000
	if refund.FeePerPlayer != wantFee {
		t.Errorf("cancellation fee = %d, want %d", refund.FeePerPlayer, wantFee)
	}
	if refund.RefundPerPlayer+refund.FeePerPlayer != fees.DepositPerPlayer(bet) {
		t.Errorf("refund %d + fee %d != deposit %d",
			refund.RefundPerPlayer, refund.FeePerPlayer, fees.DepositPerPlayer(bet))
	}
}

func TestCancellation_TinyBetNoFee(t *testing.T) {
	fees := FeeSchedule{
		CancellationFeeBps:     200,
		ResolutionFeePerPlayer: 10,
	}
	refund := fees.Cancellation(49) // 49*200/10000 floors to 0

	if refund.FeePerPlayer != 0 {
		t.Errorf("fee = %d, want 0", refund.FeePerPlayer)
	}
	if refund.RefundPerPlayer != 59 {
		t.Errorf("refund = %d, want 59", refund.RefundPerPlayer)
	}
}

func TestTimeoutRefund(t *testing.T) {
	fees := DefaultFeeSchedule()
	bet := uint64(25_000_000)

	if got := fees.TimeoutRefund(bet); got != fees.DepositPerPlayer(bet) {
		t.Errorf("TimeoutRefund() = %d, want full deposit %d", got, fees.DepositPerPlayer(bet))
	}
}
