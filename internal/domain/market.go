package domain

import "time"

// Outcome is one side of a binary prediction market.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Valid reports whether o is one of the two recognised outcomes.
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Other returns the opposing outcome.
func (o Outcome) Other() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// MarketStatus is the lifecycle state of a market. The only transition is
// OPEN -> RESOLVED, exactly once.
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "OPEN"
	MarketStatusResolved MarketStatus = "RESOLVED"
)

// InitialPoolCredits seeds both outcome pools of a new market.
const InitialPoolCredits = 1000.0

// Market is a binary-outcome prediction market tied to a tracked unit.
type Market struct {
	ID             string       `json:"id"`
	Question       string       `json:"question"`
	SubjectID      string       `json:"subjectId"`
	Deadline       time.Time    `json:"deadline"`
	CreatedBy      string       `json:"createdBy"`
	CreatedAt      time.Time    `json:"createdAt"`
	YesPool        float64      `json:"yesPool"`
	NoPool         float64      `json:"noPool"`
	Status         MarketStatus `json:"status"`
	WinningOutcome *Outcome     `json:"winningOutcome,omitempty"`
	TotalVolume    float64      `json:"totalVolume"`
}

// Pool returns the liquidity pool for the given outcome.
func (m Market) Pool(o Outcome) float64 {
	if o == OutcomeYes {
		return m.YesPool
	}
	return m.NoPool
}

// Probabilities is the implied probability of each outcome, in whole percent.
type Probabilities struct {
	Yes int `json:"YES"`
	No  int `json:"NO"`
}

// TradeSide distinguishes buys from sells.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// MarketTrade is the receipt returned for a completed buy or sell.
type MarketTrade struct {
	ID          string    `json:"id"`
	MarketID    string    `json:"marketId"`
	Participant string    `json:"participant"`
	Side        TradeSide `json:"side"`
	Outcome     Outcome   `json:"outcome"`
	Shares      float64   `json:"shares"`
	Credits     float64   `json:"credits"` // cost for buys, payout for sells
	Timestamp   time.Time `json:"timestamp"`
}
