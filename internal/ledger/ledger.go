// Package ledger records one final score per round.
package ledger

import "github.com/DoyleJ11/tetris-together/internal/engine"

type RoundScore struct {
	Round     int  `json:"round"`
	Score     int  `json:"score"`
	Lines     int  `json:"lines"`
	Level     int  `json:"level"`
	Abandoned bool `json:"abandoned,omitempty"`
}

// ShouldRecordScore is true when s has ended and list holds nothing for its round yet.
func ShouldRecordScore(s engine.State, list []RoundScore) bool {
	return s.GameOver && !Has(list, s.Round)
}

func CreateRoundScore(s engine.State) RoundScore {
	return RoundScore{
		Round: s.Round,
		Score: s.Score,
		Lines: s.Lines,
		Level: s.Level,
	}
}

// AddScoreToList appends rec without checking for an existing record.
// Callers must check ShouldRecordScore first; Record does both.
func AddScoreToList(list []RoundScore, rec RoundScore) []RoundScore {
	out := make([]RoundScore, 0, len(list)+1)
	out = append(out, list...)
	return append(out, rec)
}

// Record adds the final score of a finished round. The bool reports whether list changed.
func Record(list []RoundScore, s engine.State) ([]RoundScore, bool) {
	if !ShouldRecordScore(s, list) {
		return list, false
	}
	return AddScoreToList(list, CreateRoundScore(s)), true
}

// RecordAbandoned adds a round that was reset before it ended.
func RecordAbandoned(list []RoundScore, s engine.State) ([]RoundScore, bool) {
	if s.GameOver || Has(list, s.Round) {
		return list, false
	}
	rec := CreateRoundScore(s)
	rec.Abandoned = true
	return AddScoreToList(list, rec), true
}

func Has(list []RoundScore, round int) bool {
	for _, r := range list {
		if r.Round == round {
			return true
		}
	}
	return false
}

// Best returns the highest finished score, ignoring abandoned rounds.
func Best(list []RoundScore) (RoundScore, bool) {
	var best RoundScore
	found := false
	for _, r := range list {
		if r.Abandoned {
			continue
		}
		if !found || r.Score > best.Score {
			best, found = r, true
		}
	}
	return best, found
}
