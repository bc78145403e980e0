package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/eddiefleurent/stamford_scalper/internal/models"
)

// maxReports bounds the retained run-report history. Trades are kept
// unbounded; the file stays small because runs are minutes apart.
const maxReports = 500

// JSONJournal stores the journal as a single JSON file with atomic writes.
type JSONJournal struct {
	mu       sync.RWMutex
	filepath string
	data     *journalData
}

type journalData struct {
	Trades      []models.TradeRecord `json:"trades"`
	Reports     []models.RunReport   `json:"reports"`
	LastUpdated time.Time            `json:"last_updated"`
}

// NewJSONJournal opens (or initializes) a journal file.
func NewJSONJournal(filepath string) (*JSONJournal, error) {
	j := &JSONJournal{
		filepath: filepath,
		data:     &journalData{},
	}

	if _, err := os.Stat(filepath); err == nil {
		if err := j.Load(); err != nil {
			return nil, fmt.Errorf("loading journal: %w", err)
		}
	}

	return j, nil
}

// Load reads the journal file into memory.
func (j *JSONJournal) Load() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.filepath)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, j.data)
}

// Save writes the journal to disk via temp file + rename.
func (j *JSONJournal) Save() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.saveLocked()
}

func (j *JSONJournal) saveLocked() error {
	j.data.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(j.data, "", "  ")
	if err != nil {
		return err
	}

	tmpFile := j.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpFile, j.filepath)
}

// AppendTrade records an entered trade and persists immediately.
func (j *JSONJournal) AppendTrade(trade models.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.data.Trades = append(j.data.Trades, trade)
	return j.saveLocked()
}

// AppendReport records a run report and persists immediately.
func (j *JSONJournal) AppendReport(report models.RunReport) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.data.Reports = append(j.data.Reports, report)
	if len(j.data.Reports) > maxReports {
		j.data.Reports = j.data.Reports[len(j.data.Reports)-maxReports:]
	}
	return j.saveLocked()
}

// GetTrades returns a copy of the recorded trades.
func (j *JSONJournal) GetTrades() []models.TradeRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]models.TradeRecord, len(j.data.Trades))
	copy(out, j.data.Trades)
	return out
}

// GetReports returns a copy of the retained run reports.
func (j *JSONJournal) GetReports() []models.RunReport {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]models.RunReport, len(j.data.Reports))
	copy(out, j.data.Reports)
	return out
}

// LatestReport returns the most recent run report, or nil.
func (j *JSONJournal) LatestReport() *models.RunReport {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.data.Reports) == 0 {
		return nil
	}
	r := j.data.Reports[len(j.data.Reports)-1]
	return &r
}
