package models

import "time"

// OutcomeKind classifies how a symbol's evaluation ended this run.
type OutcomeKind string

const (
	// OutcomeNoTrigger means the detector found no wick-break.
	OutcomeNoTrigger OutcomeKind = "no_trigger"
	// OutcomeEntered means an entry filled and the bracket was placed.
	OutcomeEntered OutcomeKind = "entered"
	// OutcomeSkippedZeroQty means sizing yielded zero contracts.
	OutcomeSkippedZeroQty OutcomeKind = "skipped_zero_qty"
	// OutcomeFailed means an error terminated the symbol's lifecycle.
	OutcomeFailed OutcomeKind = "failed"
)

// SymbolOutcome is the per-symbol result record aggregated by the engine.
// Errors never propagate past the engine; they become one of these.
type SymbolOutcome struct {
	Symbol   string      `json:"symbol"`
	Kind     OutcomeKind `json:"kind"`
	Reason   string      `json:"reason,omitempty"`
	Trigger  *Trigger    `json:"trigger,omitempty"`
	Quantity int         `json:"quantity,omitempty"`
}

// EODOutcome summarizes the end-of-day cleanup phase for a whole run.
type EODOutcome struct {
	Ran             bool   `json:"ran"`
	OrdersCancelled int    `json:"orders_cancelled"`
	PositionsClosed int    `json:"positions_closed"`
	Error           string `json:"error,omitempty"`
}

// RunReport is the single record a run produces: one outcome per symbol
// plus one EOD cleanup outcome.
type RunReport struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Outcomes   []SymbolOutcome `json:"outcomes"`
	EOD        EODOutcome      `json:"eod"`
}

// TradeRecord is the journal entry written when an entry fills and its
// bracket is placed.
type TradeRecord struct {
	RunID           string       `json:"run_id"`
	Symbol          string       `json:"symbol"`
	Contract        ContractSpec `json:"contract"`
	Quantity        int          `json:"quantity"`
	FillPrice       float64      `json:"fill_price"`
	TakeProfitPrice float64      `json:"take_profit_price"`
	TakeProfitQty   int          `json:"take_profit_qty"`
	StopLossPrice   float64      `json:"stop_loss_price"`
	OCAGroup        string       `json:"oca_group"`
	EnteredAt       time.Time    `json:"entered_at"`
}
