package backtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// TimestampLayout is the layout of history keys.
const TimestampLayout = "2006-01-02_15:04:05"

// Run is the outcome of one simulation as recorded in the training history.
type Run struct {
	AssetList           []string  `json:"asset_list"`
	InitialWeights      []float64 `json:"initial_weights"`
	Dynamic             Metrics   `json:"dynamic"`
	Static              Metrics   `json:"static"`
	EqualWeight         Metrics   `json:"eq_weight"`
	TestStart           string    `json:"test_start,omitempty"`
	TestEnd             string    `json:"test_end,omitempty"`
	TradingPeriodLength string    `json:"trading_period_length,omitempty"`
}

// History maps a run timestamp to its run.
type History map[string]Run

// Keys returns the run timestamps in ascending order.
func (h History) Keys() []string {
	keys := maps.Keys(h)
	slices.Sort(keys)
	return keys
}

// HistoryFile is the JSON file holding the training history of one session.
type HistoryFile struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// HistoryPath returns the history file path of a session inside dir.
func HistoryPath(dir, session string) string {
	return filepath.Join(dir, fmt.Sprintf("train_history_%s.json", session))
}

func NewHistoryFile(dir, session string) *HistoryFile {
	return &HistoryFile{
		path: HistoryPath(dir, session),
		now:  time.Now,
	}
}

func (f *HistoryFile) Path() string {
	return f.path
}

// Load reads the whole history. A missing file is an error.
func (f *HistoryFile) Load() (History, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *HistoryFile) load() (History, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read history %s: %w", f.path, err)
	}

	history := History{}
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("decode history %s: %w", f.path, err)
	}
	return history, nil
}

// Append stores run under a new timestamp key and returns the key.
func (f *HistoryFile) Append(run Run) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	history, err := f.load()
	if errors.Is(err, os.ErrNotExist) {
		history = History{}
	} else if err != nil {
		return "", err
	}

	base := f.now().Format(TimestampLayout)
	key := base
	for i := 1; ; i++ {
		if _, ok := history[key]; !ok {
			break
		}
		key = fmt.Sprintf("%s_%03d", base, i)
	}
	history[key] = run

	if err := f.save(history); err != nil {
		return "", err
	}
	return key, nil
}

func (f *HistoryFile) save(history History) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return os.Rename(tmp, f.path)
}
