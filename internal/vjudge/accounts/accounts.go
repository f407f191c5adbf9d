// Package accounts loads the read-only, process-lifetime account tables
// from the OJ_CONFIG JSON document (spec.md §6.4).
package accounts

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"vjudge-orchestrator/internal/vjudge/model"
)

// rawConfig is the on-disk shape of OJ_CONFIG: a flat mapping of OJ name
// (normal or contest-qualified) to username -> password.
type rawConfig struct {
	Accounts map[string]map[string]string `json:"accounts"`
}

// Load reads and parses the OJ_CONFIG document at path, splitting entries
// into normal_accounts and contest_accounts by whether the OJ name carries
// a "_ct_<id>" suffix (spec.md §3, §6.4).
func Load(path string) (*model.Accounts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read OJ_CONFIG %s: %w", path, err)
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse OJ_CONFIG %s: %w", path, err)
	}

	out := &model.Accounts{
		Normal:  make(map[string][]model.Account),
		Contest: make(map[string][]model.Account),
	}
	for ojName, creds := range raw.Accounts {
		var accts []model.Account
		for username, password := range creds {
			accts = append(accts, model.Account{Username: username, Password: password})
		}
		if strings.Contains(ojName, model.ContestSuffix) {
			out.Contest[ojName] = accts
		} else {
			out.Normal[ojName] = accts
		}
	}
	return out, nil
}

// Empty reports whether both account tables are empty, in which case
// VJudge's construction is inert (spec.md §4.6).
func Empty(a *model.Accounts) bool {
	return len(a.Normal) == 0 && len(a.Contest) == 0
}

// Resolve looks up the accounts usable for ojName: normal_accounts first,
// then contest_accounts, extracting the contest id from the "_ct_<id>"
// suffix per spec.md §4.4.
func Resolve(a *model.Accounts, ojName string) (accts []model.Account, contestID string, ok bool) {
	if accts, ok = a.Normal[ojName]; ok {
		return accts, "", true
	}
	if accts, ok = a.Contest[ojName]; ok {
		_, contestID, _ = model.SplitContestName(ojName)
		return accts, contestID, true
	}
	return nil, "", false
}
