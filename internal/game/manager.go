package game

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	REDIS_KEY_BALANCE      = "coinflip:balance:"
	REDIS_KEY_ROOM         = "coinflip:room:"
	REDIS_KEY_STATS_GAMES  = "coinflip:stats:total_games"
	REDIS_KEY_STATS_VOLUME = "coinflip:stats:total_volume"

	ROOM_SNAPSHOT_TTL = 24 * time.Hour
)

// RoomKey identifies a room: game ids are unique per creator, not globally.
type RoomKey struct {
	Creator string
	GameID  uint64
}

func (k RoomKey) String() string {
	return fmt.Sprintf("%s:%d", k.Creator, k.GameID)
}

// HistoryStore persists terminal rooms. Implemented by the database service.
type HistoryStore interface {
	SaveGame(ctx context.Context, room Room) error
}

// Manager owns the room arena and the money movements around it. Player
// balances live in Redis; escrow is tracked per room and paid out by
// applying the transfers the settlement paths produce. Per-room mutation is
// serialized inside Room itself, so the manager's lock only guards the index.
type Manager struct {
	hub         *Hub
	redisClient *redis.Client
	history     HistoryStore
	now         func() time.Time

	mu     sync.RWMutex
	rooms  map[RoomKey]*Room
	fees   FeeSchedule
	paused bool
}

func NewManager(hub *Hub, redisClient *redis.Client, history HistoryStore) *Manager {
	return &Manager{
		hub:         hub,
		redisClient: redisClient,
		history:     history,
		now:         time.Now,
		rooms:       make(map[RoomKey]*Room),
		fees:        DefaultFeeSchedule(),
	}
}

// SetClock swaps the time source, used by tests to drive deadlines.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// SetFeeSchedule replaces the schedule applied to rooms created afterwards.
// Rooms keep the schedule they were created under.
func (m *Manager) SetFeeSchedule(fees FeeSchedule) error {
	if fees.HouseFeeBps > MaxHouseFeeBps {
		return fmt.Errorf("house fee %d bps exceeds cap of %d", fees.HouseFeeBps, MaxHouseFeeBps)
	}
	m.mu.Lock()
	m.fees = fees
	m.mu.Unlock()
	return nil
}

func (m *Manager) FeeSchedule() FeeSchedule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fees
}

// Pause stops new rooms from being created. In-flight rooms keep running.
func (m *Manager) Pause() {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
	log.Println("[GAME] Room creation paused")
}

func (m *Manager) Unpause() {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
	log.Println("[GAME] Room creation unpaused")
}

// CreateGame locks the creator's deposit and opens a room waiting for an
// opponent. Game ids are chosen by the creator and must be unused by them.
func (m *Manager) CreateGame(ctx context.Context, creator string, gameID uint64, betAmount uint64) (*Room, error) {
	m.mu.RLock()
	paused := m.paused
	fees := m.fees
	_, exists := m.rooms[RoomKey{Creator: creator, GameID: gameID}]
	m.mu.RUnlock()

	if paused {
		return nil, ErrProgramPaused
	}
	if exists {
		return nil, ErrGameExists
	}
	if err := fees.ValidateBet(betAmount); err != nil {
		return nil, err
	}

	deposit := fees.DepositPerPlayer(betAmount)
	if err := m.debit(ctx, creator, deposit); err != nil {
		return nil, err
	}

	room := NewRoom(creator, gameID, betAmount, fees, m.now())
	key := RoomKey{Creator: creator, GameID: gameID}

	m.mu.Lock()
	if _, raced := m.rooms[key]; raced {
		m.mu.Unlock()
		m.credit(ctx, creator, deposit)
		return nil, ErrGameExists
	}
	m.rooms[key] = room
	m.mu.Unlock()

	m.persistRoom(ctx, room)
	m.hub.Broadcast(EventMessage{Type: "game_created", Data: GameCreatedMessage{
		Creator: creator, GameID: gameID, BetAmount: betAmount,
	}})
	log.Printf("[GAME] Room %s created - bet %d (+%d resolution fee)", key, betAmount, fees.ResolutionFeePerPlayer)
	return room, nil
}

// JoinGame locks the joiner's matching deposit and fills the second seat.
func (m *Manager) JoinGame(ctx context.Context, creator string, gameID uint64, player string) (*Room, error) {
	room, err := m.room(creator, gameID)
	if err != nil {
		return nil, err
	}

	deposit := room.Fees.DepositPerPlayer(room.BetAmount)
	if err := m.debit(ctx, player, deposit); err != nil {
		return nil, err
	}
	if err := room.Join(player); err != nil {
		m.credit(ctx, player, deposit)
		return nil, err
	}

	m.persistRoom(ctx, room)
	m.hub.Broadcast(EventMessage{Type: "player_joined", Data: PlayerJoinedMessage{
		Creator: creator, GameID: gameID, PlayerB: player,
	}})
	log.Printf("[GAME] Player %s joined room %s:%d", player, creator, gameID)
	return room, nil
}

// MakeCommitment stores a player's commitment hash.
func (m *Manager) MakeCommitment(ctx context.Context, creator string, gameID uint64, player string, commitment Commitment) (*Room, error) {
	room, err := m.room(creator, gameID)
	if err != nil {
		return nil, err
	}
	if err := room.MakeCommitment(player, commitment, m.now()); err != nil {
		return nil, err
	}

	m.persistRoom(ctx, room)
	m.hub.Broadcast(EventMessage{Type: "commitment_made", Data: CommitmentMadeMessage{
		Creator: creator, GameID: gameID, Player: player,
	}})
	log.Printf("[GAME] Commitment stored for %s in room %s:%d", player, creator, gameID)
	return room, nil
}

// RevealChoice verifies a reveal; the second valid reveal settles the room.
func (m *Manager) RevealChoice(ctx context.Context, creator string, gameID uint64, player string, choice Side, secret uint64) (*Room, error) {
	room, err := m.room(creator, gameID)
	if err != nil {
		return nil, err
	}
	transfers, err := room.RevealChoice(player, choice, secret, m.now())
	if err != nil {
		return nil, err
	}

	m.hub.Broadcast(EventMessage{Type: "choice_revealed", Data: ChoiceRevealedMessage{
		Creator: creator, GameID: gameID, Player: player, Choice: choice.String(),
	}})

	if transfers != nil {
		m.finishResolved(ctx, creator, gameID, room, transfers)
	} else {
		m.persistRoom(ctx, room)
	}
	return room, nil
}

// CancelGame is the voluntary refund path, available to participants once
// the cancel window has elapsed on an unresolved room.
func (m *Manager) CancelGame(ctx context.Context, creator string, gameID uint64, caller string) (*Room, error) {
	room, err := m.room(creator, gameID)
	if err != nil {
		return nil, err
	}
	transfers, err := room.Cancel(caller, m.now())
	if err != nil {
		return nil, err
	}
	m.finishCancelled(ctx, creator, gameID, room, transfers, false)
	log.Printf("[GAME] Room %s:%d cancelled by %s", creator, gameID, caller)
	return room, nil
}

// HandleTimeout is the permissionless full-refund path for rooms stuck in
// the revealing phase.
func (m *Manager) HandleTimeout(ctx context.Context, creator string, gameID uint64) (*Room, error) {
	room, err := m.room(creator, gameID)
	if err != nil {
		return nil, err
	}
	transfers, err := room.HandleTimeout(m.now())
	if err != nil {
		return nil, err
	}
	m.finishCancelled(ctx, creator, gameID, room, transfers, true)
	log.Printf("[GAME] Room %s:%d timed out - players refunded in full", creator, gameID)
	return room, nil
}

// ResolveManual forces settlement of a fully revealed room.
func (m *Manager) ResolveManual(ctx context.Context, creator string, gameID uint64) (*Room, error) {
	room, err := m.room(creator, gameID)
	if err != nil {
		return nil, err
	}
	transfers, err := room.ResolveManual(m.now())
	if err != nil {
		return nil, err
	}
	m.finishResolved(ctx, creator, gameID, room, transfers)
	log.Printf("[GAME] Room %s:%d resolved manually", creator, gameID)
	return room, nil
}

func (m *Manager) finishResolved(ctx context.Context, creator string, gameID uint64, room *Room, transfers []Transfer) {
	m.applyTransfers(ctx, transfers)

	snap := room.Snapshot()
	m.redisClient.IncrBy(ctx, REDIS_KEY_STATS_GAMES, 1)
	m.redisClient.IncrBy(ctx, REDIS_KEY_STATS_VOLUME, int64(2*snap.BetAmount))

	m.persistRoom(ctx, room)
	m.saveHistory(ctx, snap)

	msg := GameResolvedMessage{
		Creator:      creator,
		GameID:       gameID,
		Winner:       snap.Winner,
		TieBreak:     snap.TieBreak,
		WinnerPayout: 2*snap.BetAmount - snap.HouseFeeCollected,
		HouseFee:     snap.HouseFeeCollected,
	}
	if snap.CoinResult != nil {
		msg.CoinResult = snap.CoinResult.String()
	}
	m.hub.Broadcast(EventMessage{Type: "game_resolved", Data: msg})
	log.Printf("[GAME] Room %s:%d resolved - winner %s (payout %d, house fee %d)",
		creator, gameID, msg.Winner, msg.WinnerPayout, msg.HouseFee)
}

func (m *Manager) finishCancelled(ctx context.Context, creator string, gameID uint64, room *Room, transfers []Transfer, timeout bool) {
	m.applyTransfers(ctx, transfers)

	snap := room.Snapshot()
	m.persistRoom(ctx, room)
	m.saveHistory(ctx, snap)

	var refund uint64
	for _, t := range transfers {
		if t.Kind == TransferRefund {
			refund = t.Amount
			break
		}
	}
	m.hub.Broadcast(EventMessage{Type: "game_cancelled", Data: GameCancelledMessage{
		Creator: creator, GameID: gameID, Refund: refund, Timeout: timeout,
	}})
}

// GetRoom returns a point-in-time copy of the room state.
func (m *Manager) GetRoom(creator string, gameID uint64) (Room, error) {
	room, err := m.room(creator, gameID)
	if err != nil {
		return Room{}, err
	}
	return room.Snapshot(), nil
}

// ListRooms snapshots every room currently in the arena.
func (m *Manager) ListRooms() []Room {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.mu.RUnlock()

	snaps := make([]Room, 0, len(rooms))
	for _, room := range rooms {
		snaps = append(snaps, room.Snapshot())
	}
	return snaps
}

// Balance reads a user's ledger balance. A missing key is a zero balance.
func (m *Manager) Balance(ctx context.Context, user string) (uint64, error) {
	balance, err := m.redisClient.Get(ctx, REDIS_KEY_BALANCE+user).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	if balance < 0 {
		return 0, nil
	}
	return uint64(balance), nil
}

// SetBalance overwrites a user's balance (admin/testing, like a faucet).
func (m *Manager) SetBalance(ctx context.Context, user string, amount uint64) error {
	return m.redisClient.Set(ctx, REDIS_KEY_BALANCE+user, int64(amount), 0).Err()
}

// Stats returns the settled-game counters.
func (m *Manager) Stats(ctx context.Context) (totalGames, totalVolume uint64) {
	games, _ := m.redisClient.Get(ctx, REDIS_KEY_STATS_GAMES).Int64()
	volume, _ := m.redisClient.Get(ctx, REDIS_KEY_STATS_VOLUME).Int64()
	return uint64(games), uint64(volume)
}

func (m *Manager) room(creator string, gameID uint64) (*Room, error) {
	m.mu.RLock()
	room, ok := m.rooms[RoomKey{Creator: creator, GameID: gameID}]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrGameNotFound
	}
	return room, nil
}

func (m *Manager) debit(ctx context.Context, user string, amount uint64) error {
	balanceKey := REDIS_KEY_BALANCE + user
	balance, err := m.redisClient.Get(ctx, balanceKey).Int64()
	if err != nil || balance < int64(amount) {
		return ErrInsufficientFunds
	}

	newBalance, err := m.redisClient.DecrBy(ctx, balanceKey, int64(amount)).Result()
	if err != nil || newBalance < 0 {
		m.redisClient.IncrBy(ctx, balanceKey, int64(amount)) // Rollback
		return ErrInsufficientFunds
	}
	return nil
}

func (m *Manager) credit(ctx context.Context, user string, amount uint64) {
	if amount == 0 {
		return
	}
	if err := m.redisClient.IncrBy(ctx, REDIS_KEY_BALANCE+user, int64(amount)).Err(); err != nil {
		log.Printf("[GAME] Failed to credit %d to %s: %v", amount, user, err)
	}
}

func (m *Manager) applyTransfers(ctx context.Context, transfers []Transfer) {
	for _, t := range transfers {
		m.credit(ctx, t.To, t.Amount)
	}
}

func (m *Manager) persistRoom(ctx context.Context, room *Room) {
	snap := room.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("[GAME] Snapshot marshal error for %s:%d: %v", snap.Creator, snap.GameID, err)
		return
	}
	key := REDIS_KEY_ROOM + RoomKey{Creator: snap.Creator, GameID: snap.GameID}.String()
	if err := m.redisClient.Set(ctx, key, data, ROOM_SNAPSHOT_TTL).Err(); err != nil {
		log.Printf("[GAME] Snapshot store error for %s: %v", key, err)
	}
}

func (m *Manager) saveHistory(ctx context.Context, snap Room) {
	if m.history == nil {
		return
	}
	if err := m.history.SaveGame(ctx, snap); err != nil {
		log.Printf("[GAME] History store error for %s:%d: %v", snap.Creator, snap.GameID, err)
	}
}
