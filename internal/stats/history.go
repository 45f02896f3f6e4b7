package stats

import (
	"fmt"
	"io"
	"time"

	"github.com/ferrovax/keyrace/internal/model"
)

// Summary aggregates a player's race history.
type Summary struct {
	Races       int
	Wins        int
	Losses      int
	Ties        int
	AvgWPM      float64
	BestWPM     float64
	AvgAccuracy float64
}

// localSide resolves which side of a record belongs to the player. The
// archive stores the host first, but the local player may have joined a
// room as the opponent.
func localSide(rec model.RaceRecord, playerID string) (wpm, accuracy float64, ok bool) {
	switch playerID {
	case rec.HostID:
		return rec.HostWPM, rec.HostAccuracy, true
	case rec.OppID:
		return rec.OppWPM, rec.OppAccuracy, true
	}
	return 0, 0, false
}

// Summarize folds race records into one player summary. Races the player
// took no part in, on either side, contribute nothing.
func Summarize(records []model.RaceRecord, playerID string) Summary {
	var s Summary
	var totalWPM, totalAcc float64
	for _, rec := range records {
		wpm, acc, ok := localSide(rec, playerID)
		if !ok {
			continue
		}
		s.Races++
		switch {
		case rec.IsTie:
			s.Ties++
		case rec.WinnerID == playerID:
			s.Wins++
		default:
			s.Losses++
		}
		totalWPM += wpm
		totalAcc += acc
		if wpm > s.BestWPM {
			s.BestWPM = wpm
		}
	}
	if s.Races > 0 {
		s.AvgWPM = totalWPM / float64(s.Races)
		s.AvgAccuracy = totalAcc / float64(s.Races)
	}
	return s
}

// RenderHistory prints a summary followed by one row per race.
func RenderHistory(w io.Writer, records []model.RaceRecord, playerID string) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No races found.")
		return err
	}

	s := Summarize(records, playerID)
	if _, err := fmt.Fprintln(w, "Summary"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Races: %d (W %d / L %d / T %d)\n", s.Races, s.Wins, s.Losses, s.Ties); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Avg WPM: %.2f\n", s.AvgWPM); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Best WPM: %.2f\n", s.BestWPM); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Avg Accuracy: %.2f%%\n", s.AvgAccuracy); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, ""); err != nil {
		return err
	}

	headers := []string{"Date", "Room", "Lang", "Opponent", "Result", "WPM", "Accuracy", "Duration"}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		wpm, acc, ok := localSide(rec, playerID)
		if !ok {
			wpm, acc = rec.HostWPM, rec.HostAccuracy
		}
		rows = append(rows, []string{
			rec.EndedAt.Local().Format("2006-01-02 15:04"),
			rec.RoomCode,
			rec.Lang,
			opponentLabel(rec, playerID),
			resultLabel(rec, playerID),
			fmt.Sprintf("%.1f", wpm),
			fmt.Sprintf("%.2f%%", acc),
			formatDuration(rec.DurationMs),
		})
	}
	rightAlign := map[int]bool{5: true, 6: true, 7: true}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, ""); err != nil {
		return err
	}
	return nil
}

func opponentLabel(rec model.RaceRecord, playerID string) string {
	if playerID == rec.OppID && rec.OppID != "" {
		return rec.HostID
	}
	if rec.OppIsBot {
		return "bot"
	}
	if rec.OppID == "" {
		return "-"
	}
	return rec.OppID
}

func resultLabel(rec model.RaceRecord, playerID string) string {
	switch {
	case rec.Status == model.StatusCancelled:
		return "cancelled"
	case rec.IsTie:
		return "tie"
	case rec.WinnerID == playerID:
		return "win"
	case rec.WinnerID == "":
		return "-"
	default:
		return "loss"
	}
}

func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return d.Truncate(time.Second).String()
}
