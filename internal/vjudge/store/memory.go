package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"vjudge-orchestrator/internal/vjudge/model"
)

// MemorySubmissionStore is an in-memory SubmissionStore used by unit tests
// and by the StatusCrawler/Submitter scenario tests in spec.md §8.
type MemorySubmissionStore struct {
	mu      sync.Mutex
	nextID  int64
	byID    map[int64]*model.Submission
}

// NewMemorySubmissionStore builds an empty MemorySubmissionStore.
func NewMemorySubmissionStore() *MemorySubmissionStore {
	return &MemorySubmissionStore{byID: make(map[int64]*model.Submission)}
}

func (m *MemorySubmissionStore) Get(ctx context.Context, id int64) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemorySubmissionStore) Insert(ctx context.Context, s *model.Submission) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	if s.Verdict == "" {
		s.Verdict = model.VerdictQueuing
	}
	if s.TimeStamp.IsZero() {
		s.TimeStamp = time.Now().UTC()
	}
	cp := *s
	m.byID[s.ID] = &cp
	return s.ID, nil
}

func (m *MemorySubmissionStore) SetSubmitted(ctx context.Context, id int64, runID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if model.IsTerminal(s.Verdict) {
		return nil
	}
	s.RunID = &runID
	s.UserID = &userID
	s.Verdict = model.VerdictBeingJudged
	return nil
}

func (m *MemorySubmissionStore) SetVerdict(ctx context.Context, id int64, v model.Verdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if model.IsTerminal(s.Verdict) {
		return nil
	}
	s.Verdict = v
	return nil
}

func (m *MemorySubmissionStore) SetResult(ctx context.Context, id int64, v model.Verdict, exeTime, exeMem int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if model.IsTerminal(s.Verdict) {
		return nil
	}
	s.Verdict = v
	s.ExeTime = &exeTime
	s.ExeMem = &exeMem
	return nil
}

func (m *MemorySubmissionStore) ListPending(ctx context.Context) ([]*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Submission
	for _, s := range m.byID {
		if s.Pending() {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MemoryProblemStore is an in-memory ProblemStore for tests.
type MemoryProblemStore struct {
	mu   sync.Mutex
	byID map[string]*model.Problem
}

func NewMemoryProblemStore() *MemoryProblemStore {
	return &MemoryProblemStore{byID: make(map[string]*model.Problem)}
}

func problemKey(ojName, problemID string) string { return ojName + "\x00" + problemID }

func (m *MemoryProblemStore) Get(ctx context.Context, ojName, problemID string) (*model.Problem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[problemKey(ojName, problemID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryProblemStore) Upsert(ctx context.Context, p *model.Problem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.LastUpdate = time.Now().UTC()
	cp := *p
	m.byID[problemKey(p.OJName, p.ProblemID)] = &cp
	return nil
}

func (m *MemoryProblemStore) Stale(ctx context.Context) ([]*model.Problem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var out []*model.Problem
	for _, p := range m.byID {
		if p.Stale(now) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryProblemStore) MaxProblemID(ctx context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int)
	for _, p := range m.byID {
		n, err := strconv.Atoi(p.ProblemID)
		if err != nil {
			continue
		}
		if cur, ok := out[p.OJName]; !ok || n > cur {
			out[p.OJName] = n
		}
	}
	return out, nil
}

var (
	_ SubmissionStore = (*MemorySubmissionStore)(nil)
	_ ProblemStore    = (*MemoryProblemStore)(nil)
)
