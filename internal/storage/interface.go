// Package storage persists the trade journal: entered trades and per-run
// reports. The journal is an audit trail, not operational state — the
// broker remains the source of truth for live orders and positions.
package storage

import "github.com/eddiefleurent/stamford_scalper/internal/models"

// Interface defines the contract for journal persistence.
//
// Implementations must be safe for concurrent use; callers may write trades
// and reports from multiple goroutines.
type Interface interface {
	AppendTrade(trade models.TradeRecord) error
	AppendReport(report models.RunReport) error

	GetTrades() []models.TradeRecord
	GetReports() []models.RunReport
	LatestReport() *models.RunReport

	Save() error
	Load() error
}

// NewStorage creates a new journal implementation (currently JSON-based).
func NewStorage(filepath string) (Interface, error) {
	return NewJSONJournal(filepath)
}

// Ensure JSONJournal implements Interface.
var _ Interface = (*JSONJournal)(nil)
