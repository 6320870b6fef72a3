// Package tradejournal records every order as an intent before submission and
// its outcome afterwards, so an interrupted tick leaves a pending record behind.
package tradejournal

import (
	"os"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"

	"github.com/gapeva/poolbot/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	intentKeyPrefix = "trade_intent_"
	segmentLimit    = 1000
	maxSegments     = 100
)

// Status of a trade intent.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Intent journal record of one order.
type Intent struct {
	ID     string          `json:"id"`
	Status Status          `json:"status"`
	Side   string          `json:"side"`
	Pair   string          `json:"pair"`
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`
	Reason string          `json:"reason,omitempty"`
	// Filled executed base quantity when the venue reports it.
	Filled decimal.Decimal `json:"filled"`
	Time   time.Time       `json:"time"`
	Error  string          `json:"error,omitempty"`
}

// Journal is a WAL of trade intents.
type Journal struct {
	mu      sync.Mutex
	wal     *gowal.Wal
	intents []*Intent
	index   map[string]*Intent
}

// Open opens the journal under dir and replays existing intents.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure WAL directory %s", dir)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "journal_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init trade journal WAL")
	}

	j := &Journal{wal: wal, index: make(map[string]*Intent)}
	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, intentKeyPrefix) {
			continue
		}
		var intent Intent
		if err := json.Unmarshal(msg.Value, &intent); err != nil {
			return nil, errors.Wrapf(err, "decode trade intent %s", msg.Key)
		}
		// later records of the same intent replace earlier ones
		if existing, ok := j.index[intent.ID]; ok {
			*existing = intent
			continue
		}
		rec := intent
		j.intents = append(j.intents, &rec)
		j.index[rec.ID] = &rec
	}

	return j, nil
}

// Prepare records a pending intent for the trade.
func (j *Journal) Prepare(trade domain.TradeEvent) (*Intent, error) {
	intent := &Intent{
		ID:     trade.ID,
		Status: StatusPending,
		Side:   trade.Signal.String(),
		Pair:   trade.Pair.String(),
		Amount: trade.Amount,
		Price:  trade.Price,
		Reason: trade.Reason,
		Time:   trade.Time,
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.persist(intent); err != nil {
		return nil, err
	}
	j.intents = append(j.intents, intent)
	j.index[intent.ID] = intent
	return intent, nil
}

// MarkDone records a successful submission with the filled quantity, zero when unknown.
func (j *Journal) MarkDone(intent *Intent, filled decimal.Decimal) error {
	if intent == nil {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	intent.Status = StatusDone
	intent.Filled = filled
	intent.Error = ""
	return j.persist(intent)
}

// MarkFailed records a rejected or failed submission.
func (j *Journal) MarkFailed(intent *Intent, cause error) error {
	if intent == nil {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	intent.Status = StatusFailed
	intent.Error = ""
	if cause != nil {
		intent.Error = cause.Error()
	}
	return j.persist(intent)
}

// Pending returns intents whose outcome was never recorded.
func (j *Journal) Pending() []Intent {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []Intent
	for _, intent := range j.intents {
		if intent.Status == StatusPending {
			out = append(out, *intent)
		}
	}
	return out
}

// Intents returns copies of all intents in submission order.
func (j *Journal) Intents() []Intent {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Intent, len(j.intents))
	for i, intent := range j.intents {
		out[i] = *intent
	}
	return out
}

// Close closes the underlying WAL.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.wal.Close()
}

func (j *Journal) persist(intent *Intent) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return errors.Wrap(err, "failed to marshal trade intent")
	}
	return j.wal.Write(j.wal.CurrentIndex()+1, intentKeyPrefix+intent.ID, data)
}
