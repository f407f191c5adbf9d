package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vjudge-orchestrator/internal/vjudge/model"
)

// PostgresSubmissionStore persists Submission rows via pgx, following the
// teacher's pkg/database connection pool and internal/judge/service.go
// query style.
type PostgresSubmissionStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSubmissionStore wraps an existing pool.
func NewPostgresSubmissionStore(pool *pgxpool.Pool) *PostgresSubmissionStore {
	return &PostgresSubmissionStore{pool: pool}
}

func (s *PostgresSubmissionStore) Get(ctx context.Context, id int64) (*model.Submission, error) {
	const query = `
		SELECT id, oj_name, problem_id, language, source_code, user_id,
		       run_id, verdict, exe_time, exe_mem, time_stamp
		FROM submissions
		WHERE id = $1
	`
	row := s.pool.QueryRow(ctx, query, id)
	sub := &model.Submission{}
	err := row.Scan(
		&sub.ID, &sub.OJName, &sub.ProblemID, &sub.Language, &sub.SourceCode,
		&sub.UserID, &sub.RunID, &sub.Verdict, &sub.ExeTime, &sub.ExeMem, &sub.TimeStamp,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get submission %d: %w", id, err)
	}
	return sub, nil
}

func (s *PostgresSubmissionStore) Insert(ctx context.Context, sub *model.Submission) (int64, error) {
	const query = `
		INSERT INTO submissions (oj_name, problem_id, language, source_code, verdict, time_stamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	if sub.Verdict == "" {
		sub.Verdict = model.VerdictQueuing
	}
	if sub.TimeStamp.IsZero() {
		sub.TimeStamp = time.Now().UTC()
	}
	var id int64
	err := s.pool.QueryRow(ctx, query,
		sub.OJName, sub.ProblemID, sub.Language, sub.SourceCode, sub.Verdict, sub.TimeStamp,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert submission: %w", err)
	}
	sub.ID = id
	return id, nil
}

func (s *PostgresSubmissionStore) SetSubmitted(ctx context.Context, id int64, runID, userID string) error {
	const query = `
		UPDATE submissions
		SET run_id = $1, user_id = $2, verdict = $3
		WHERE id = $4 AND verdict NOT IN (
			'Accepted', 'Wrong Answer', 'Time Limit Exceeded', 'Memory Limit Exceeded',
			'Runtime Error', 'Compile Error', 'Presentation Error',
			'Submit Failed', 'Judge Failed', 'Judge Timeout'
		)
	`
	_, err := s.pool.Exec(ctx, query, runID, userID, model.VerdictBeingJudged, id)
	if err != nil {
		return fmt.Errorf("set submitted %d: %w", id, err)
	}
	return nil
}

func (s *PostgresSubmissionStore) SetVerdict(ctx context.Context, id int64, v model.Verdict) error {
	const query = `
		UPDATE submissions
		SET verdict = $1
		WHERE id = $2 AND verdict NOT IN (
			'Accepted', 'Wrong Answer', 'Time Limit Exceeded', 'Memory Limit Exceeded',
			'Runtime Error', 'Compile Error', 'Presentation Error',
			'Submit Failed', 'Judge Failed', 'Judge Timeout'
		)
	`
	_, err := s.pool.Exec(ctx, query, v, id)
	if err != nil {
		return fmt.Errorf("set verdict %d: %w", id, err)
	}
	return nil
}

func (s *PostgresSubmissionStore) SetResult(ctx context.Context, id int64, v model.Verdict, exeTime, exeMem int) error {
	const query = `
		UPDATE submissions
		SET verdict = $1, exe_time = $2, exe_mem = $3
		WHERE id = $4 AND verdict NOT IN (
			'Accepted', 'Wrong Answer', 'Time Limit Exceeded', 'Memory Limit Exceeded',
			'Runtime Error', 'Compile Error', 'Presentation Error',
			'Submit Failed', 'Judge Failed', 'Judge Timeout'
		)
	`
	_, err := s.pool.Exec(ctx, query, v, exeTime, exeMem, id)
	if err != nil {
		return fmt.Errorf("set result %d: %w", id, err)
	}
	return nil
}

func (s *PostgresSubmissionStore) ListPending(ctx context.Context) ([]*model.Submission, error) {
	const query = `
		SELECT id, oj_name, problem_id, language, source_code, user_id,
		       run_id, verdict, exe_time, exe_mem, time_stamp
		FROM submissions
		WHERE verdict IN ($1, $2)
	`
	rows, err := s.pool.Query(ctx, query, model.VerdictQueuing, model.VerdictBeingJudged)
	if err != nil {
		return nil, fmt.Errorf("list pending submissions: %w", err)
	}
	defer rows.Close()

	var out []*model.Submission
	for rows.Next() {
		sub := &model.Submission{}
		if err := rows.Scan(
			&sub.ID, &sub.OJName, &sub.ProblemID, &sub.Language, &sub.SourceCode,
			&sub.UserID, &sub.RunID, &sub.Verdict, &sub.ExeTime, &sub.ExeMem, &sub.TimeStamp,
		); err != nil {
			return nil, fmt.Errorf("scan pending submission: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// PostgresProblemStore persists Problem rows via pgx.
type PostgresProblemStore struct {
	pool *pgxpool.Pool
}

func NewPostgresProblemStore(pool *pgxpool.Pool) *PostgresProblemStore {
	return &PostgresProblemStore{pool: pool}
}

func (s *PostgresProblemStore) Get(ctx context.Context, ojName, problemID string) (*model.Problem, error) {
	const query = `
		SELECT oj_name, problem_id, title, description, input, output,
		       sample_input, sample_output, time_limit, mem_limit, last_update
		FROM problems
		WHERE oj_name = $1 AND problem_id = $2
	`
	row := s.pool.QueryRow(ctx, query, ojName, problemID)
	p := &model.Problem{}
	err := row.Scan(
		&p.OJName, &p.ProblemID, &p.Title, &p.Description, &p.Input, &p.Output,
		&p.SampleInput, &p.SampleOutput, &p.TimeLimitMS, &p.MemLimitKB, &p.LastUpdate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get problem %s/%s: %w", ojName, problemID, err)
	}
	return p, nil
}

func (s *PostgresProblemStore) Upsert(ctx context.Context, p *model.Problem) error {
	const query = `
		INSERT INTO problems (oj_name, problem_id, title, description, input, output,
		                       sample_input, sample_output, time_limit, mem_limit, last_update)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (oj_name, problem_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			input = EXCLUDED.input,
			output = EXCLUDED.output,
			sample_input = EXCLUDED.sample_input,
			sample_output = EXCLUDED.sample_output,
			time_limit = EXCLUDED.time_limit,
			mem_limit = EXCLUDED.mem_limit,
			last_update = EXCLUDED.last_update
	`
	p.LastUpdate = time.Now().UTC()
	_, err := s.pool.Exec(ctx, query,
		p.OJName, p.ProblemID, p.Title, p.Description, p.Input, p.Output,
		p.SampleInput, p.SampleOutput, p.TimeLimitMS, p.MemLimitKB, p.LastUpdate,
	)
	if err != nil {
		return fmt.Errorf("upsert problem %s/%s: %w", p.OJName, p.ProblemID, err)
	}
	return nil
}

func (s *PostgresProblemStore) Stale(ctx context.Context) ([]*model.Problem, error) {
	const query = `
		SELECT oj_name, problem_id, title, description, input, output,
		       sample_input, sample_output, time_limit, mem_limit, last_update
		FROM problems
		WHERE $1 - last_update > INTERVAL '24 hours'
	`
	rows, err := s.pool.Query(ctx, query, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list stale problems: %w", err)
	}
	defer rows.Close()

	var out []*model.Problem
	for rows.Next() {
		p := &model.Problem{}
		if err := rows.Scan(
			&p.OJName, &p.ProblemID, &p.Title, &p.Description, &p.Input, &p.Output,
			&p.SampleInput, &p.SampleOutput, &p.TimeLimitMS, &p.MemLimitKB, &p.LastUpdate,
		); err != nil {
			return nil, fmt.Errorf("scan stale problem: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresProblemStore) MaxProblemID(ctx context.Context) (map[string]int, error) {
	const query = `
		SELECT oj_name, MAX(problem_id::int)
		FROM problems
		WHERE problem_id ~ '^[0-9]+$'
		GROUP BY oj_name
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("max problem id: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var ojName string
		var maxID int
		if err := rows.Scan(&ojName, &maxID); err != nil {
			return nil, fmt.Errorf("scan max problem id: %w", err)
		}
		out[ojName] = maxID
	}
	return out, rows.Err()
}

var (
	_ SubmissionStore = (*PostgresSubmissionStore)(nil)
	_ ProblemStore    = (*PostgresProblemStore)(nil)
)
