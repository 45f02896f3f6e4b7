// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ferrovax/keyrace/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for race archives, keystroke logs, and
// per-character confidence state.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS races (
			id TEXT PRIMARY KEY,
			room_code TEXT NOT NULL,
			lang TEXT NOT NULL,
			status TEXT NOT NULL,
			host_id TEXT NOT NULL,
			winner_id TEXT NOT NULL,
			is_tie INTEGER NOT NULL,
			expected_text TEXT NOT NULL,
			host_wpm REAL NOT NULL,
			host_accuracy REAL NOT NULL,
			host_progress REAL NOT NULL,
			opp_id TEXT NOT NULL,
			opp_is_bot INTEGER NOT NULL,
			opp_wpm REAL NOT NULL,
			opp_accuracy REAL NOT NULL,
			opp_progress REAL NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS race_keystrokes (
			race_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			kind INTEGER NOT NULL,
			expected TEXT NOT NULL,
			typed TEXT NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			cursor_idx INTEGER NOT NULL,
			correct INTEGER NOT NULL,
			PRIMARY KEY (race_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS char_confidence (
			lang TEXT NOT NULL,
			char TEXT NOT NULL,
			confidence REAL NOT NULL,
			samples INTEGER NOT NULL,
			PRIMARY KEY (lang, char)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_races_ended_at ON races(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_race_keystrokes_race ON race_keystrokes(race_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveRace stores a finished race and its local keystroke log.
func (s *Store) SaveRace(ctx context.Context, rec model.RaceRecord, log []model.Keystroke) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO races (id, room_code, lang, status, host_id, winner_id, is_tie, expected_text,
			host_wpm, host_accuracy, host_progress, opp_id, opp_is_bot, opp_wpm, opp_accuracy, opp_progress,
			started_at, ended_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.RoomCode,
		rec.Lang,
		string(rec.Status),
		rec.HostID,
		rec.WinnerID,
		boolToInt(rec.IsTie),
		rec.ExpectedText,
		rec.HostWPM,
		rec.HostAccuracy,
		rec.HostProgress,
		rec.OppID,
		boolToInt(rec.OppIsBot),
		rec.OppWPM,
		rec.OppAccuracy,
		rec.OppProgress,
		rec.StartedAt.Format(time.RFC3339Nano),
		rec.EndedAt.Format(time.RFC3339Nano),
		rec.DurationMs,
	)
	if err != nil {
		return err
	}

	if len(log) > 0 {
		stmt, perr := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO race_keystrokes (race_id, seq, kind, expected, typed, timestamp_ms, cursor_idx, correct)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if perr != nil {
			err = perr
			return err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for seq, ks := range log {
			if _, err = stmt.ExecContext(ctx, rec.ID, seq, int(ks.Kind), string(ks.Expected), string(ks.Typed), ks.TimestampMs, ks.CursorIndex, boolToInt(ks.Correct)); err != nil {
				return err
			}
		}
	}

	err = tx.Commit()
	return err
}

// GetRace loads one archived race by id.
func (s *Store) GetRace(ctx context.Context, id string) (model.RaceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, room_code, lang, status, host_id, winner_id, is_tie, expected_text,
			host_wpm, host_accuracy, host_progress, opp_id, opp_is_bot, opp_wpm, opp_accuracy, opp_progress,
			started_at, ended_at, duration_ms
		 FROM races WHERE id = ?`, id)
	return scanRace(row)
}

// ListRaces returns archived races filtered by history config, oldest first.
func (s *Store) ListRaces(ctx context.Context, cfg model.HistoryConfig) ([]model.RaceRecord, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Lang != "" {
		clauses = append(clauses, "lang = ?")
		args = append(args, cfg.Lang)
	}
	if cfg.Since != nil {
		clauses = append(clauses, "ended_at >= ?")
		args = append(args, cfg.Since.Format(time.RFC3339Nano))
	}
	query := fmt.Sprintf(`SELECT id, room_code, lang, status, host_id, winner_id, is_tie, expected_text,
			host_wpm, host_accuracy, host_progress, opp_id, opp_is_bot, opp_wpm, opp_accuracy, opp_progress,
			started_at, ended_at, duration_ms
		FROM races
		WHERE %s
		ORDER BY ended_at ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var records []model.RaceRecord
	for rows.Next() {
		rec, err := scanRace(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if cfg.Last > 0 && len(records) > cfg.Last {
		records = records[len(records)-cfg.Last:]
	}
	return records, nil
}

// LoadKeystrokes returns the persisted keystroke log for a race in
// insertion order.
func (s *Store) LoadKeystrokes(ctx context.Context, raceID string) ([]model.Keystroke, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, expected, typed, timestamp_ms, cursor_idx, correct
		 FROM race_keystrokes WHERE race_id = ? ORDER BY seq ASC`, raceID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var log []model.Keystroke
	for rows.Next() {
		var (
			kind               int
			expected, typed    string
			tsMs               int64
			cursorIdx, correct int
		)
		if err := rows.Scan(&kind, &expected, &typed, &tsMs, &cursorIdx, &correct); err != nil {
			return nil, err
		}
		ks := model.Keystroke{
			SessionID:   raceID,
			Kind:        model.KeystrokeKind(kind),
			TimestampMs: tsMs,
			CursorIndex: cursorIdx,
			Correct:     correct != 0,
		}
		if r := []rune(expected); len(r) > 0 {
			ks.Expected = r[0]
		}
		if r := []rune(typed); len(r) > 0 {
			ks.Typed = r[0]
		}
		log = append(log, ks)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return log, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRace(row rowScanner) (model.RaceRecord, error) {
	var (
		status             string
		isTie, oppIsBot    int
		startedAt, endedAt string
	)
	var out model.RaceRecord
	if err := row.Scan(&out.ID, &out.RoomCode, &out.Lang, &status, &out.HostID, &out.WinnerID, &isTie, &out.ExpectedText,
		&out.HostWPM, &out.HostAccuracy, &out.HostProgress, &out.OppID, &oppIsBot, &out.OppWPM, &out.OppAccuracy, &out.OppProgress,
		&startedAt, &endedAt, &out.DurationMs); err != nil {
		return model.RaceRecord{}, err
	}
	out.Status = model.RaceStatus(status)
	out.IsTie = isTie != 0
	out.OppIsBot = oppIsBot != 0
	started, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return model.RaceRecord{}, err
	}
	ended, err := time.Parse(time.RFC3339Nano, endedAt)
	if err != nil {
		return model.RaceRecord{}, err
	}
	out.StartedAt = started
	out.EndedAt = ended
	return out, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
