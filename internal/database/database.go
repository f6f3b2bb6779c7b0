package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"

	"coinflip/internal/game"
)

// Service wraps the Postgres connection and the settled-game history store.
type Service interface {
	// SaveGame upserts a terminal room into the history table. Idempotent:
	// replaying the same settlement is a no-op.
	SaveGame(ctx context.Context, room game.Room) error
	GetGame(ctx context.Context, creator string, gameID uint64) (*GameRecord, error)
	ListRecentGames(ctx context.Context, limit int) ([]GameRecord, error)
	ListGamesByPlayer(ctx context.Context, player string, limit int) ([]GameRecord, error)

	Health() map[string]string
	Close() error
	DB() *sql.DB
}

// GameRecord is the persisted shape of a terminal room.
type GameRecord struct {
	Creator       string     `json:"creator"`
	GameID        uint64     `json:"game_id"`
	PlayerA       string     `json:"player_a"`
	PlayerB       string     `json:"player_b,omitempty"`
	BetAmount     uint64     `json:"bet_amount"`
	Status        string     `json:"status"`
	Winner        string     `json:"winner,omitempty"`
	CoinResult    string     `json:"coin_result,omitempty"`
	TieBreak      bool       `json:"tie_break"`
	HouseFee      uint64     `json:"house_fee"`
	ResolutionFee uint64     `json:"resolution_fee"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

type service struct {
	db *sql.DB
}

var (
	database   = getEnv("COINFLIP_DB_DATABASE", "coinflip")
	password   = getEnv("COINFLIP_DB_PASSWORD", "postgres")
	username   = getEnv("COINFLIP_DB_USERNAME", "postgres")
	port       = getEnv("COINFLIP_DB_PORT", "5432")
	host       = getEnv("COINFLIP_DB_HOST", "localhost")
	schema     = getEnv("COINFLIP_DB_SCHEMA", "public")
	dbInstance *service
)

func New() Service {
	if dbInstance != nil {
		return dbInstance
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		username, password, host, port, database, schema)
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		log.Fatalf("[DB] Failed to open database: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	dbInstance = &service{db: db}
	return dbInstance
}

func (s *service) DB() *sql.DB {
	return s.db
}

func (s *service) SaveGame(ctx context.Context, room game.Room) error {
	var coinResult *string
	if room.CoinResult != nil {
		v := room.CoinResult.String()
		coinResult = &v
	}
	var playerB, winner *string
	if room.PlayerB != "" {
		playerB = &room.PlayerB
	}
	if room.Winner != "" {
		winner = &room.Winner
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO games (
			creator, game_id, player_a, player_b, bet_amount, status,
			winner, coin_result, tie_break, house_fee, resolution_fee,
			created_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (creator, game_id) DO UPDATE SET
			status = EXCLUDED.status,
			winner = EXCLUDED.winner,
			coin_result = EXCLUDED.coin_result,
			tie_break = EXCLUDED.tie_break,
			house_fee = EXCLUDED.house_fee,
			resolution_fee = EXCLUDED.resolution_fee,
			resolved_at = EXCLUDED.resolved_at`,
		room.Creator, int64(room.GameID), room.PlayerA, playerB,
		int64(room.BetAmount), string(room.Status), winner, coinResult,
		room.TieBreak, int64(room.HouseFeeCollected),
		int64(room.ResolutionFeeCollected), room.CreatedAt, room.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("save game %s:%d: %w", room.Creator, room.GameID, err)
	}
	return nil
}

const gameColumns = `creator, game_id, player_a, player_b, bet_amount, status,
	winner, coin_result, tie_break, house_fee, resolution_fee, created_at, resolved_at`

func scanGame(row interface{ Scan(...interface{}) error }) (*GameRecord, error) {
	var (
		rec                         GameRecord
		gameID, bet, houseFee, rFee int64
		playerB, winner, coinResult sql.NullString
		resolvedAt                  sql.NullTime
	)
	err := row.Scan(&rec.Creator, &gameID, &rec.PlayerA, &playerB, &bet,
		&rec.Status, &winner, &coinResult, &rec.TieBreak, &houseFee, &rFee,
		&rec.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	rec.GameID = uint64(gameID)
	rec.BetAmount = uint64(bet)
	rec.HouseFee = uint64(houseFee)
	rec.ResolutionFee = uint64(rFee)
	rec.PlayerB = playerB.String
	rec.Winner = winner.String
	rec.CoinResult = coinResult.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		rec.ResolvedAt = &t
	}
	return &rec, nil
}

func (s *service) GetGame(ctx context.Context, creator string, gameID uint64) (*GameRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE creator = $1 AND game_id = $2`,
		creator, int64(gameID))
	rec, err := scanGame(row)
	if err == sql.ErrNoRows {
		return nil, game.ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get game %s:%d: %w", creator, gameID, err)
	}
	return rec, nil
}

func (s *service) ListRecentGames(ctx context.Context, limit int) ([]GameRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+gameColumns+` FROM games ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent games: %w", err)
	}
	defer rows.Close()
	return collectGames(rows)
}

func (s *service) ListGamesByPlayer(ctx context.Context, player string, limit int) ([]GameRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+gameColumns+` FROM games
		 WHERE player_a = $1 OR player_b = $1
		 ORDER BY created_at DESC LIMIT $2`, player, limit)
	if err != nil {
		return nil, fmt.Errorf("list games for %s: %w", player, err)
	}
	defer rows.Close()
	return collectGames(rows)
}

func collectGames(rows *sql.Rows) ([]GameRecord, error) {
	var records []GameRecord
	for rows.Next() {
		rec, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	err := s.db.PingContext(ctx)
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()

	return stats
}

func (s *service) Close() error {
	log.Printf("[DB] Disconnecting from database: %s", database)
	return s.db.Close()
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
