package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vjudge-orchestrator/internal/vjudge/model"
)

func TestMemorySubmissionStoreInsertGet(t *testing.T) {
	s := NewMemorySubmissionStore()
	id, err := s.Insert(context.Background(), &model.Submission{OJName: "hdu", ProblemID: "1001"})
	require.NoError(t, err)

	got, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.VerdictQueuing, got.Verdict)
}

func TestMemorySubmissionStoreGetMissing(t *testing.T) {
	s := NewMemorySubmissionStore()
	_, err := s.Get(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySubmissionStoreSetSubmittedThenTerminalRefusesOverwrite(t *testing.T) {
	s := NewMemorySubmissionStore()
	id, _ := s.Insert(context.Background(), &model.Submission{OJName: "hdu", ProblemID: "1001"})

	require.NoError(t, s.SetSubmitted(context.Background(), id, "run-1", "alice"))
	got, _ := s.Get(context.Background(), id)
	assert.Equal(t, model.VerdictBeingJudged, got.Verdict)
	require.NotNil(t, got.RunID)
	assert.Equal(t, "run-1", *got.RunID)

	require.NoError(t, s.SetResult(context.Background(), id, model.VerdictAccepted, 100, 1024))
	got, _ = s.Get(context.Background(), id)
	assert.Equal(t, model.VerdictAccepted, got.Verdict)

	// A terminal verdict must never be overwritten.
	require.NoError(t, s.SetVerdict(context.Background(), id, model.VerdictJudgeFailed))
	got, _ = s.Get(context.Background(), id)
	assert.Equal(t, model.VerdictAccepted, got.Verdict)
}

func TestMemorySubmissionStoreListPending(t *testing.T) {
	s := NewMemorySubmissionStore()
	queuingID, _ := s.Insert(context.Background(), &model.Submission{OJName: "hdu"})
	doneID, _ := s.Insert(context.Background(), &model.Submission{OJName: "hdu"})
	require.NoError(t, s.SetVerdict(context.Background(), doneID, model.VerdictAccepted))

	pending, err := s.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, queuingID, pending[0].ID)
}

func TestMemoryProblemStoreUpsertGetStale(t *testing.T) {
	s := NewMemoryProblemStore()
	err := s.Upsert(context.Background(), &model.Problem{OJName: "hdu", ProblemID: "1001", Title: "A+B"})
	require.NoError(t, err)

	got, err := s.Get(context.Background(), "hdu", "1001")
	require.NoError(t, err)
	assert.Equal(t, "A+B", got.Title)

	stale, err := s.Stale(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stale, "freshly upserted problem should not be stale")
}

func TestMemoryProblemStoreMaxProblemID(t *testing.T) {
	s := NewMemoryProblemStore()
	require.NoError(t, s.Upsert(context.Background(), &model.Problem{OJName: "hdu", ProblemID: "1001"}))
	require.NoError(t, s.Upsert(context.Background(), &model.Problem{OJName: "hdu", ProblemID: "1050"}))
	require.NoError(t, s.Upsert(context.Background(), &model.Problem{OJName: "hdu", ProblemID: "not-a-number"}))

	maxIDs, err := s.MaxProblemID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1050, maxIDs["hdu"])
}
