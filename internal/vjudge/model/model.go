// Package model defines the persistent record shapes the vjudge core
// operates on: submissions, problems, and the read-only account tables.
package model

import (
	"strings"
	"time"
)

// Verdict is the judging status of a submission. It is either transient
// (pre-terminal) or terminal; see IsTerminal.
type Verdict string

const (
	VerdictQueuing             Verdict = "Queuing"
	VerdictBeingJudged         Verdict = "Being Judged"
	VerdictCompiling           Verdict = "Compiling"
	VerdictRunning             Verdict = "Running"
	VerdictAccepted            Verdict = "Accepted"
	VerdictWrongAnswer         Verdict = "Wrong Answer"
	VerdictTimeLimitExceeded   Verdict = "Time Limit Exceeded"
	VerdictMemoryLimitExceeded Verdict = "Memory Limit Exceeded"
	VerdictRuntimeError        Verdict = "Runtime Error"
	VerdictCompileError        Verdict = "Compile Error"
	VerdictPresentationError   Verdict = "Presentation Error"
	VerdictSubmitFailed        Verdict = "Submit Failed"
	VerdictJudgeFailed         Verdict = "Judge Failed"
	VerdictJudgeTimeout        Verdict = "Judge Timeout"
)

// transientVerdicts mirrors the set checked by StatusCrawler between polls.
var transientVerdicts = map[Verdict]bool{
	VerdictBeingJudged: true,
	VerdictQueuing:     true,
	VerdictCompiling:   true,
	VerdictRunning:     true,
}

// IsTransient reports whether v is a non-final, "keep polling" status.
func IsTransient(v Verdict) bool {
	return transientVerdicts[v]
}

// terminalVerdicts is the full terminal set from spec.md §3.
var terminalVerdicts = map[Verdict]bool{
	VerdictAccepted:            true,
	VerdictWrongAnswer:         true,
	VerdictTimeLimitExceeded:   true,
	VerdictMemoryLimitExceeded: true,
	VerdictRuntimeError:        true,
	VerdictCompileError:        true,
	VerdictPresentationError:   true,
	VerdictSubmitFailed:        true,
	VerdictJudgeFailed:         true,
	VerdictJudgeTimeout:        true,
}

// IsTerminal reports whether v is a final verdict that must never be
// overwritten or re-enqueued.
func IsTerminal(v Verdict) bool {
	return terminalVerdicts[v]
}

// Submission is the persistent record described in spec.md §3.
type Submission struct {
	ID         int64
	OJName     string
	ProblemID  string
	Language   string
	SourceCode string
	UserID     *string
	RunID      *string
	Verdict    Verdict
	ExeTime    *int
	ExeMem     *int
	TimeStamp  time.Time
}

// Pending reports whether the submission is still eligible for submit/poll
// processing (verdict gate used by Submitter step 1/2).
func (s *Submission) Pending() bool {
	return s.Verdict == VerdictQueuing || s.Verdict == VerdictBeingJudged
}

// Problem is the persistent record keyed by (OJName, ProblemID).
type Problem struct {
	OJName        string
	ProblemID     string
	Title         string
	Description   string
	Input         string
	Output        string
	SampleInput   string
	SampleOutput  string
	TimeLimitMS   int
	MemLimitKB    int
	LastUpdate    time.Time
}

// Stale reports whether the problem record needs re-crawling, per spec.md
// §3's 24h staleness rule.
func (p *Problem) Stale(now time.Time) bool {
	return now.Sub(p.LastUpdate) > 24*time.Hour
}

// Summary is the compact logging projection used by ProblemCrawler,
// grounded on the original vjudge's Problem.summary().
func (p *Problem) Summary() string {
	return p.OJName + "/" + p.ProblemID + ": " + p.Title
}

// Account is one borrowed (username, password) credential for an OJ.
type Account struct {
	Username string
	Password string
}

// Accounts is the process-lifetime, load-once account table of spec.md §3.
type Accounts struct {
	// Normal maps OJ name -> accounts usable for that OJ's normal queues.
	Normal map[string][]Account
	// Contest maps contest-qualified OJ name (e.g. "hdu_ct_1234") -> accounts.
	Contest map[string][]Account
}

// ConfiguredOJs lists every OJ name (normal and contest-qualified) with at
// least one borrowed account, the "configured" side of the distinction
// SPEC_FULL.md §7 supplements between configured and available OJs.
func (a *Accounts) ConfiguredOJs() []string {
	names := make([]string, 0, len(a.Normal)+len(a.Contest))
	for name := range a.Normal {
		names = append(names, name)
	}
	for name := range a.Contest {
		names = append(names, name)
	}
	return names
}

// ContestSuffix is the separator introduced by spec.md's GLOSSARY for
// contest-qualified OJ names: "<oj>_ct_<contest_id>".
const ContestSuffix = "_ct_"

// SplitContestName splits a contest-qualified OJ name into its base OJ name
// and contest id. ok is false if name does not carry the "_ct_" marker.
func SplitContestName(name string) (ojName, contestID string, ok bool) {
	idx := strings.Index(name, ContestSuffix)
	if idx < 0 {
		return "", "", false
	}
	return name[:idx], name[idx+len(ContestSuffix):], true
}

// IsContestQualified reports whether name carries a "_ct_<id>" suffix.
func IsContestQualified(name string) bool {
	_, _, ok := SplitContestName(name)
	return ok
}
