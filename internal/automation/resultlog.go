package automation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// resultCapacity bounds the retained history; the oldest entries are
	// dropped once it is exceeded.
	resultCapacity = 1000

	defaultQueryLimit = 50
)

// Query selects a page of results, newest first.
type Query struct {
	Limit        int
	Offset       int
	AutomationID string
}

// ResultPage is the paginated view returned by Query.
type ResultPage struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	HasMore bool     `json:"hasMore"`
}

// ResultLog is an append-only, capacity-bounded history of run results.
type ResultLog interface {
	Append(ctx context.Context, r Result) error
	Query(ctx context.Context, q Query) (ResultPage, error)
	Get(ctx context.Context, id string) (Result, bool, error)
	// Clear removes results for one automation, or everything when
	// automationID is empty.
	Clear(ctx context.Context, automationID string) error
}

func generateResultID(now time.Time) string {
	return fmt.Sprintf("run-%d", now.UTC().UnixNano())
}

// paginate applies filter/offset/limit to a newest-first slice. Shared by
// the memory and redis logs.
func paginate(all []Result, q Query) ResultPage {
	filtered := all
	if id := strings.TrimSpace(q.AutomationID); id != "" {
		filtered = make([]Result, 0, len(all))
		for _, r := range all {
			if r.AutomationID == id {
				filtered = append(filtered, r)
			}
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	total := len(filtered)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	page := make([]Result, end-start)
	copy(page, filtered[start:end])
	return ResultPage{
		Results: page,
		Total:   total,
		HasMore: end < total,
	}
}

// MemoryResultLog keeps results in a newest-first slice.
type MemoryResultLog struct {
	mu      sync.RWMutex
	results []Result
}

func NewMemoryResultLog() *MemoryResultLog {
	return &MemoryResultLog{}
}

func (l *MemoryResultLog) Append(ctx context.Context, r Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append([]Result{r}, l.results...)
	if len(l.results) > resultCapacity {
		l.results = l.results[:resultCapacity]
	}
	return nil
}

func (l *MemoryResultLog) Query(ctx context.Context, q Query) (ResultPage, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return paginate(l.results, q), nil
}

func (l *MemoryResultLog) Get(ctx context.Context, id string) (Result, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id = strings.TrimSpace(id)
	for _, r := range l.results {
		if r.ID == id {
			return r, true, nil
		}
	}
	return Result{}, false, nil
}

func (l *MemoryResultLog) Clear(ctx context.Context, automationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	automationID = strings.TrimSpace(automationID)
	if automationID == "" {
		l.results = nil
		return nil
	}
	kept := l.results[:0]
	for _, r := range l.results {
		if r.AutomationID != automationID {
			kept = append(kept, r)
		}
	}
	l.results = kept
	return nil
}
