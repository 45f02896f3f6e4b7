package store

import (
	"context"

	"github.com/ferrovax/keyrace/internal/model"
)

// ListConfidence returns all per-character confidence rows for a language.
func (s *Store) ListConfidence(ctx context.Context, lang string) ([]model.CharConfidence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT char, confidence, samples FROM char_confidence WHERE lang = ? ORDER BY char ASC`, lang)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var out []model.CharConfidence
	for rows.Next() {
		var cc model.CharConfidence
		if err := rows.Scan(&cc.Char, &cc.Confidence, &cc.Samples); err != nil {
			return nil, err
		}
		out = append(out, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertConfidence inserts or replaces one per-character confidence row.
func (s *Store) UpsertConfidence(ctx context.Context, lang string, cc model.CharConfidence) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO char_confidence (lang, char, confidence, samples) VALUES (?, ?, ?, ?)
		 ON CONFLICT(lang, char) DO UPDATE SET confidence = excluded.confidence, samples = excluded.samples`,
		lang, cc.Char, cc.Confidence, cc.Samples)
	return err
}
