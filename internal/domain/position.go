package domain

// StartingCredits is the balance granted to a participant on first contact
// with the prediction-market subsystem.
const StartingCredits = 1000.0

// Holding is a participant's share counts in one market. Both sides are kept
// so a participant can hold YES and NO simultaneously; holdings never go
// negative.
type Holding struct {
	Yes float64 `json:"YES"`
	No  float64 `json:"NO"`
}

// Shares returns the held share count for the given outcome.
func (h Holding) Shares(o Outcome) float64 {
	if o == OutcomeYes {
		return h.Yes
	}
	return h.No
}

// Empty reports whether the holding carries no shares on either side.
func (h Holding) Empty() bool {
	return h.Yes == 0 && h.No == 0
}

// ParticipantStats are monotonically updated prediction counters. Profit is
// the only field that can decrease.
type ParticipantStats struct {
	CorrectPredictions int     `json:"correctPredictions"`
	TotalPredictions   int     `json:"totalPredictions"`
	Profit             float64 `json:"profit"`
	TotalTrades        int     `json:"totalTrades"`
}

// Accuracy is correct/total, or 0 when the participant has no predictions.
func (s ParticipantStats) Accuracy() float64 {
	if s.TotalPredictions == 0 {
		return 0
	}
	return float64(s.CorrectPredictions) / float64(s.TotalPredictions)
}

// ParticipantSummary is the full view of one participant's market state.
type ParticipantSummary struct {
	Participant string             `json:"participant"`
	Credits     float64            `json:"credits"`
	Holdings    map[string]Holding `json:"holdings"` // keyed by market ID
	Stats       ParticipantStats   `json:"stats"`
}

// LeaderboardEntry is one row of the accuracy leaderboard.
type LeaderboardEntry struct {
	Participant string           `json:"participant"`
	Accuracy    float64          `json:"accuracy"`
	Stats       ParticipantStats `json:"stats"`
	Credits     float64          `json:"credits"`
}
