package server

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryStore appends one row per finished game. Nothing is ever read back
// into live state; rooms live and die in memory and the table is purely a
// record of completed matches.
type HistoryStore struct {
	pool *pgxpool.Pool
}

const historySchema = `
CREATE TABLE IF NOT EXISTS match_history (
	id           BIGSERIAL PRIMARY KEY,
	room_id      TEXT        NOT NULL,
	winner_name  TEXT        NOT NULL,
	player1_name TEXT        NOT NULL,
	player1_score INTEGER    NOT NULL,
	player2_name TEXT        NOT NULL,
	player2_score INTEGER    NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL
)`

func NewHistoryStore(ctx context.Context, databaseURL string) (*HistoryStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, historySchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create match_history table: %w", err)
	}

	return &HistoryStore{pool: pool}, nil
}

func (h *HistoryStore) Close() {
	h.pool.Close()
}

type MatchRecord struct {
	RoomID       string    `json:"roomId"`
	WinnerName   string    `json:"winnerName"`
	Player1Name  string    `json:"player1Name"`
	Player1Score int       `json:"player1Score"`
	Player2Name  string    `json:"player2Name"`
	Player2Score int       `json:"player2Score"`
	FinishedAt   time.Time `json:"finishedAt"`
}

// RecordMatch inserts one completed game.
func (h *HistoryStore) RecordMatch(ctx context.Context, rec MatchRecord) error {
	_, err := h.pool.Exec(ctx, `
		INSERT INTO match_history
			(room_id, winner_name, player1_name, player1_score, player2_name, player2_score, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.RoomID, rec.WinnerName,
		rec.Player1Name, rec.Player1Score,
		rec.Player2Name, rec.Player2Score,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert match record for room %s: %w", rec.RoomID, err)
	}
	return nil
}

// RecentMatches returns the newest records first, up to limit.
func (h *HistoryStore) RecentMatches(ctx context.Context, limit int) ([]MatchRecord, error) {
	rows, err := h.pool.Query(ctx, `
		SELECT room_id, winner_name, player1_name, player1_score, player2_name, player2_score, finished_at
		FROM match_history
		ORDER BY finished_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query match history: %w", err)
	}
	defer rows.Close()

	var records []MatchRecord
	for rows.Next() {
		var rec MatchRecord
		if err := rows.Scan(&rec.RoomID, &rec.WinnerName,
			&rec.Player1Name, &rec.Player1Score,
			&rec.Player2Name, &rec.Player2Score,
			&rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan match record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate match records: %w", err)
	}
	return records, nil
}
