package race

import (
	"math"

	"github.com/ferrovax/keyrace/internal/model"
)

// DecideWinner resolves the winner of a completed race through the
// tie-break chain: progress is the primary competitive signal, speed the
// secondary signal among finishers, accuracy breaks speed ties rewarding
// correctness, and finish time is the final physical tiebreaker. An
// absolute tie yields no winner.
func DecideWinner(host, opponent model.PlayerState) (winnerID string, isTie bool) {
	hostCrossed := host.Progress >= finishThreshold
	oppCrossed := opponent.Progress >= finishThreshold
	if hostCrossed && !oppCrossed {
		return host.ID, false
	}
	if oppCrossed && !hostCrossed {
		return opponent.ID, false
	}

	if diff := host.WPM - opponent.WPM; math.Abs(diff) > wpmNoiseFloor {
		if diff > 0 {
			return host.ID, false
		}
		return opponent.ID, false
	}

	if diff := host.Accuracy - opponent.Accuracy; math.Abs(diff) > accuracyNoiseFloor {
		if diff > 0 {
			return host.ID, false
		}
		return opponent.ID, false
	}

	switch {
	case host.Finished() && !opponent.Finished():
		return host.ID, false
	case opponent.Finished() && !host.Finished():
		return opponent.ID, false
	case host.Finished() && opponent.Finished() && host.FinishedAtMs != opponent.FinishedAtMs:
		if host.FinishedAtMs < opponent.FinishedAtMs {
			return host.ID, false
		}
		return opponent.ID, false
	}

	return "", true
}
