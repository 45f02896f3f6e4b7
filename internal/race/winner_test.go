package race

import (
	"testing"

	"github.com/ferrovax/keyrace/internal/model"
)

func TestDecideWinner(t *testing.T) {
	cases := []struct {
		name       string
		host       model.PlayerState
		opponent   model.PlayerState
		wantWinner string
		wantTie    bool
	}{
		{
			name:       "first to finish beats faster straggler",
			host:       model.PlayerState{ID: "host", Progress: 100, WPM: 50, FinishedAtMs: 9000},
			opponent:   model.PlayerState{ID: "opp", Progress: 70, WPM: 80},
			wantWinner: "host",
		},
		{
			name:       "both finished, higher wpm wins",
			host:       model.PlayerState{ID: "host", Progress: 100, WPM: 60, FinishedAtMs: 9000},
			opponent:   model.PlayerState{ID: "opp", Progress: 100, WPM: 70, FinishedAtMs: 9500},
			wantWinner: "opp",
		},
		{
			name:       "wpm tied, higher accuracy wins",
			host:       model.PlayerState{ID: "host", Progress: 100, WPM: 65, Accuracy: 97, FinishedAtMs: 9000},
			opponent:   model.PlayerState{ID: "opp", Progress: 100, WPM: 65, Accuracy: 95, FinishedAtMs: 8000},
			wantWinner: "host",
		},
		{
			name:       "wpm inside noise floor is a tie on speed",
			host:       model.PlayerState{ID: "host", Progress: 100, WPM: 65.05, Accuracy: 95, FinishedAtMs: 9000},
			opponent:   model.PlayerState{ID: "opp", Progress: 100, WPM: 65, Accuracy: 95, FinishedAtMs: 8000},
			wantWinner: "opp", // falls through to earlier finish
		},
		{
			name:       "earlier finish breaks full tie",
			host:       model.PlayerState{ID: "host", Progress: 100, WPM: 65, Accuracy: 95, FinishedAtMs: 7000},
			opponent:   model.PlayerState{ID: "opp", Progress: 100, WPM: 65, Accuracy: 95, FinishedAtMs: 8000},
			wantWinner: "host",
		},
		{
			name:       "sole finisher wins when stats tie",
			host:       model.PlayerState{ID: "host", Progress: 96, WPM: 65, Accuracy: 95},
			opponent:   model.PlayerState{ID: "opp", Progress: 100, WPM: 65, Accuracy: 95, FinishedAtMs: 8000},
			wantWinner: "opp",
		},
		{
			name:     "absolute tie",
			host:     model.PlayerState{ID: "host", Progress: 80, WPM: 65, Accuracy: 95},
			opponent: model.PlayerState{ID: "opp", Progress: 82, WPM: 65, Accuracy: 95},
			wantTie:  true,
		},
		{
			name:       "threshold crossing wins regardless of speed",
			host:       model.PlayerState{ID: "host", Progress: 95, WPM: 40, Accuracy: 90},
			opponent:   model.PlayerState{ID: "opp", Progress: 94.9, WPM: 120, Accuracy: 99},
			wantWinner: "host",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			winner, isTie := DecideWinner(tc.host, tc.opponent)
			if winner != tc.wantWinner {
				t.Fatalf("winner = %q, want %q", winner, tc.wantWinner)
			}
			if isTie != tc.wantTie {
				t.Fatalf("isTie = %v, want %v", isTie, tc.wantTie)
			}
		})
	}
}
