package game

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// testManager connects to a local Redis and skips when none is available,
// so the ledger tests run against the real balance operations.
func testManager(t *testing.T) (*Manager, *redis.Client) {
	t.Helper()

	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 9})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available at %s: %v", addr, err)
	}
	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("could not flush test db: %v", err)
	}

	m := NewManager(NewHub(), client, nil)
	return m, client
}

func fund(t *testing.T, m *Manager, user string, amount uint64) {
	t.Helper()
	if err := m.SetBalance(context.Background(), user, amount); err != nil {
		t.Fatalf("could not fund %s: %v", user, err)
	}
}

func TestManager_CreateGame(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	deposit := DefaultFeeSchedule().DepositPerPlayer(MinBetAmount)
	fund(t, m, "alice", deposit)

	room, err := m.CreateGame(ctx, "alice", 1, MinBetAmount)
	if err != nil {
		t.Fatalf("CreateGame() error: %v", err)
	}
	if room.Status != StatusWaitingForPlayer {
		t.Errorf("status = %v, want %v", room.Status, StatusWaitingForPlayer)
	}

	balance, err := m.Balance(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if balance != 0 {
		t.Errorf("creator balance after deposit = %d, want 0", balance)
	}

	// Duplicate id under the same creator.
	fund(t, m, "alice", deposit)
	if _, err := m.CreateGame(ctx, "alice", 1, MinBetAmount); !errors.Is(err, ErrGameExists) {
		t.Errorf("duplicate create error = %v, want ErrGameExists", err)
	}

	// Same id under a different creator is a different room.
	fund(t, m, "carol", deposit)
	if _, err := m.CreateGame(ctx, "carol", 1, MinBetAmount); err != nil {
		t.Errorf("create under other creator error = %v", err)
	}
}

func TestManager_CreateGame_Guards(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	// Broke creator keeps their (zero) balance and no room appears.
	if _, err := m.CreateGame(ctx, "alice", 1, MinBetAmount); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("unfunded create error = %v, want ErrInsufficientFunds", err)
	}
	if _, err := m.GetRoom("alice", 1); !errors.Is(err, ErrGameNotFound) {
		t.Error("room appeared despite failed deposit")
	}

	fund(t, m, "alice", MaxBetAmount*2)
	if _, err := m.CreateGame(ctx, "alice", 2, MinBetAmount-1); !errors.Is(err, ErrBetTooLow) {
		t.Errorf("low bet error = %v, want ErrBetTooLow", err)
	}
	if _, err := m.CreateGame(ctx, "alice", 3, MaxBetAmount+1); !errors.Is(err, ErrBetTooHigh) {
		t.Errorf("high bet error = %v, want ErrBetTooHigh", err)
	}

	m.Pause()
	if _, err := m.CreateGame(ctx, "alice", 4, MinBetAmount); !errors.Is(err, ErrProgramPaused) {
		t.Errorf("paused create error = %v, want ErrProgramPaused", err)
	}
	m.Unpause()
	if _, err := m.CreateGame(ctx, "alice", 4, MinBetAmount); err != nil {
		t.Errorf("create after unpause error = %v", err)
	}
}

func TestManager_JoinGame_RollbackOnError(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	deposit := DefaultFeeSchedule().DepositPerPlayer(MinBetAmount)
	fund(t, m, "alice", deposit)
	fund(t, m, "bob", deposit)
	fund(t, m, "carol", deposit)

	if _, err := m.CreateGame(ctx, "alice", 1, MinBetAmount); err != nil {
		t.Fatal(err)
	}
	if _, err := m.JoinGame(ctx, "alice", 1, "bob"); err != nil {
		t.Fatal(err)
	}

	// Carol's debit must be rolled back when the seat is already taken.
	if _, err := m.JoinGame(ctx, "alice", 1, "carol"); err == nil {
		t.Fatal("third join succeeded")
	}
	balance, err := m.Balance(ctx, "carol")
	if err != nil {
		t.Fatal(err)
	}
	if balance != deposit {
		t.Errorf("carol balance after rejected join = %d, want %d", balance, deposit)
	}
}

func TestManager_FullLifecycle_FundConservation(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	fees := DefaultFeeSchedule()
	bet := MinBetAmount * uint64(3)
	deposit := fees.DepositPerPlayer(bet)

	fund(t, m, "alice", deposit)
	fund(t, m, "bob", deposit)

	if _, err := m.CreateGame(ctx, "alice", 7, bet); err != nil {
		t.Fatal(err)
	}
	if _, err := m.JoinGame(ctx, "alice", 7, "bob"); err != nil {
		t.Fatal(err)
	}

	secretA, secretB := uint64(123123), uint64(456456)
	if _, err := m.MakeCommitment(ctx, "alice", 7, "alice", Commit(Heads, secretA)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.MakeCommitment(ctx, "alice", 7, "bob", Commit(Tails, secretB)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RevealChoice(ctx, "alice", 7, "alice", Heads, secretA); err != nil {
		t.Fatal(err)
	}
	room, err := m.RevealChoice(ctx, "alice", 7, "bob", Tails, secretB)
	if err != nil {
		t.Fatal(err)
	}

	snap := room.Snapshot()
	if snap.Status != StatusResolved {
		t.Fatalf("status = %v, want %v", snap.Status, StatusResolved)
	}

	// Every unit deposited is now in some balance.
	var total uint64
	for _, user := range []string{"alice", "bob", HouseAccount} {
		b, err := m.Balance(ctx, user)
		if err != nil {
			t.Fatal(err)
		}
		total += b
	}
	if total != 2*deposit {
		t.Errorf("balances sum to %d, want %d", total, 2*deposit)
	}

	// The winner holds the payout, the house its fees.
	house, _ := m.Balance(ctx, HouseAccount)
	if want := snap.HouseFeeCollected + snap.ResolutionFeeCollected; house != want {
		t.Errorf("house balance = %d, want %d", house, want)
	}
	winner, _ := m.Balance(ctx, snap.Winner)
	if want := 2*bet - snap.HouseFeeCollected; winner != want {
		t.Errorf("winner balance = %d, want %d", winner, want)
	}

	games, volume := m.Stats(ctx)
	if games != 1 {
		t.Errorf("total games = %d, want 1", games)
	}
	if volume != 2*bet {
		t.Errorf("total volume = %d, want %d", volume, 2*bet)
	}
}

func TestManager_Timeout(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := start
	m.SetClock(func() time.Time { return now })

	deposit := DefaultFeeSchedule().DepositPerPlayer(MinBetAmount)
	fund(t, m, "alice", deposit)
	fund(t, m, "bob", deposit)

	if _, err := m.CreateGame(ctx, "alice", 1, MinBetAmount); err != nil {
		t.Fatal(err)
	}
	if _, err := m.JoinGame(ctx, "alice", 1, "bob"); err != nil {
		t.Fatal(err)
	}
	secretA := uint64(123123)
	if _, err := m.MakeCommitment(ctx, "alice", 1, "alice", Commit(Heads, secretA)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.MakeCommitment(ctx, "alice", 1, "bob", Commit(Tails, 456456)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RevealChoice(ctx, "alice", 1, "alice", Heads, secretA); err != nil {
		t.Fatal(err)
	}

	// Bob never reveals.
	if _, err := m.HandleTimeout(ctx, "alice", 1); !errors.Is(err, ErrTimeoutNotReached) {
		t.Errorf("early timeout error = %v, want ErrTimeoutNotReached", err)
	}

	now = start.Add(DefaultRevealWindow + time.Second)
	room, err := m.HandleTimeout(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("HandleTimeout() error: %v", err)
	}
	if room.Snapshot().Status != StatusCancelled {
		t.Error("room not cancelled after timeout")
	}

	// Full refunds, nothing to the house.
	for _, user := range []string{"alice", "bob"} {
		b, _ := m.Balance(ctx, user)
		if b != deposit {
			t.Errorf("%s balance = %d, want %d", user, b, deposit)
		}
	}
	house, _ := m.Balance(ctx, HouseAccount)
	if house != 0 {
		t.Errorf("house balance = %d, want 0", house)
	}
}

func TestManager_Cancel(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := start
	m.SetClock(func() time.Time { return now })

	fees := DefaultFeeSchedule()
	deposit := fees.DepositPerPlayer(MinBetAmount)
	fund(t, m, "alice", deposit)

	if _, err := m.CreateGame(ctx, "alice", 1, MinBetAmount); err != nil {
		t.Fatal(err)
	}

	now = start.Add(DefaultCancelWindow + time.Second)
	if _, err := m.CancelGame(ctx, "alice", 1, "alice"); err != nil {
		t.Fatalf("CancelGame() error: %v", err)
	}

	refund := fees.Cancellation(MinBetAmount)
	balance, _ := m.Balance(ctx, "alice")
	if balance != refund.RefundPerPlayer {
		t.Errorf("alice balance = %d, want %d", balance, refund.RefundPerPlayer)
	}
	house, _ := m.Balance(ctx, HouseAccount)
	if house != refund.FeePerPlayer {
		t.Errorf("house balance = %d, want %d", house, refund.FeePerPlayer)
	}
}

func TestManager_SetFeeSchedule(t *testing.T) {
	m := NewManager(NewHub(), redis.NewClient(&redis.Options{}), nil)

	fees := DefaultFeeSchedule()
	fees.HouseFeeBps = MaxHouseFeeBps + 1
	if err := m.SetFeeSchedule(fees); err == nil {
		t.Error("SetFeeSchedule() accepted a rate above the cap")
	}

	fees.HouseFeeBps = 500
	if err := m.SetFeeSchedule(fees); err != nil {
		t.Fatalf("SetFeeSchedule() error: %v", err)
	}
	if got := m.FeeSchedule().HouseFeeBps; got != 500 {
		t.Errorf("house fee = %d, want 500", got)
	}
}

func TestManager_RoomSnapshotPersisted(t *testing.T) {
	m, client := testManager(t)
	ctx := context.Background()

	deposit := DefaultFeeSchedule().DepositPerPlayer(MinBetAmount)
	fund(t, m, "alice", deposit)

	if _, err := m.CreateGame(ctx, "alice", 42, MinBetAmount); err != nil {
		t.Fatal(err)
	}

	key := fmt.Sprintf("%salice:42", REDIS_KEY_ROOM)
	data, err := client.Get(ctx, key).Result()
	if err != nil {
		t.Fatalf("snapshot missing from Redis: %v", err)
	}
	if data == "" {
		t.Error("snapshot is empty")
	}
}
