package quiz

import (
	"fmt"
	"log"
	"strings"
)

type Tier string

const (
	TierEasy   Tier = "easy"
	TierMedium Tier = "medium"
	TierHard   Tier = "hard"
)

// PoolQuestion is a raw candidate from the question bank, tagged by bank id
// and optionally by scenario metadata.
type PoolQuestion struct {
	BankID        int    `json:"bank_id"`
	Prompt        string `json:"prompt"`
	CorrectAnswer string `json:"correct_answer"`
	ScenarioTitle string `json:"scenario_title,omitempty"`
	Scenario      string `json:"scenario,omitempty"`
	CodeSnippet   string `json:"code_snippet,omitempty"`
}

// TierPool partitions the raw bank into difficulty tiers.
type TierPool struct {
	Easy   []PoolQuestion `json:"easy"`
	Medium []PoolQuestion `json:"medium"`
	Hard   []PoolQuestion `json:"hard"`
}

// SelectedQuestion is a pool question re-tagged with its sequential position.
// The position doubles as a collision-free identifier: bank ids may recur
// across tiers, positions never do.
type SelectedQuestion struct {
	Position int
	PoolQuestion
}

// Selector carves a fixed easy/medium/hard set out of a variable-size pool.
// Quotas are soft targets: an under-supplied tier yields fewer questions
// rather than failing the quiz.
type Selector struct {
	Whitelist map[Tier][]int
	Quotas    map[Tier]int
}

func NewSelector() *Selector {
	return &Selector{
		Whitelist: map[Tier][]int{
			TierEasy:   {101, 104, 108, 112},
			TierMedium: {205, 209, 214},
			TierHard:   {303, 307, 311},
		},
		Quotas: map[Tier]int{
			TierEasy:   4,
			TierMedium: 3,
			TierHard:   3,
		},
	}
}

// Build selects up to 10 questions: easy first, then medium, then hard, with
// sequential positions assigned as questions are appended. Scenario-bearing
// medium/hard candidates are steered onto the reserved scenario ordinals so
// the ledger keeps their scenario text instead of blanking it.
func (s *Selector) Build(pool TierPool) []SelectedQuestion {
	var out []SelectedQuestion
	pos := 0
	for _, tier := range []struct {
		name            Tier
		candidates      []PoolQuestion
		scenarioOrdinal int
	}{
		{TierEasy, pool.Easy, 0},
		{TierMedium, pool.Medium, ScenarioOrdinalMedium},
		{TierHard, pool.Hard, ScenarioOrdinalHard},
	} {
		picked := s.pickTier(tier.name, tier.candidates, tier.scenarioOrdinal > 0)
		if tier.scenarioOrdinal > 0 {
			placeScenario(picked, tier.scenarioOrdinal-pos-1)
		}
		for _, q := range picked {
			pos++
			out = append(out, SelectedQuestion{Position: pos, PoolQuestion: augmentPrompt(q)})
		}
	}
	return out
}

// placeScenario moves a scenario-bearing tier head onto the reserved ledger
// ordinal, expressed as an index within the tier. When the reserved ordinal
// falls outside an under-supplied tier the candidate stays at the head.
func placeScenario(picked []PoolQuestion, idx int) {
	if len(picked) == 0 || !hasScenario(picked[0]) {
		return
	}
	if idx <= 0 || idx >= len(picked) {
		return
	}
	head := picked[0]
	copy(picked, picked[1:idx+1])
	picked[idx] = head
}

// pickTier applies the whitelist-then-backfill selection, then pulls the
// first scenario-bearing candidate into the picked set at its head; Build
// relocates it onto the reserved ordinal afterwards.
func (s *Selector) pickTier(tier Tier, candidates []PoolQuestion, promote bool) []PoolQuestion {
	quota := s.Quotas[tier]

	ordered := s.preferenceOrder(tier, candidates)
	if len(ordered) > quota {
		ordered = ordered[:quota]
	}
	if len(ordered) < quota {
		log.Printf("selector: tier %s under-supplied: wanted %d, have %d", tier, quota, len(ordered))
	}

	if !promote {
		return ordered
	}

	scen := -1
	for i, c := range candidates {
		if hasScenario(c) {
			scen = i
			break
		}
	}
	if scen < 0 {
		return ordered
	}

	promoted := candidates[scen]
	result := []PoolQuestion{promoted}
	for _, c := range ordered {
		if len(result) == quota {
			break
		}
		if c.BankID == promoted.BankID && c.Prompt == promoted.Prompt {
			continue
		}
		result = append(result, c)
	}
	return result
}

// preferenceOrder lists a tier's candidates with whitelisted bank ids first
// (in whitelist order), then the remainder of the pool in original order.
func (s *Selector) preferenceOrder(tier Tier, candidates []PoolQuestion) []PoolQuestion {
	used := make([]bool, len(candidates))
	var out []PoolQuestion
	for _, want := range s.Whitelist[tier] {
		for i, c := range candidates {
			if !used[i] && c.BankID == want {
				used[i] = true
				out = append(out, c)
				break
			}
		}
	}
	for i, c := range candidates {
		if !used[i] {
			out = append(out, c)
		}
	}
	return out
}

func hasScenario(q PoolQuestion) bool {
	return strings.TrimSpace(q.ScenarioTitle) != "" || strings.TrimSpace(q.Scenario) != ""
}

// augmentPrompt appends the candidate's code snippet as a fenced block when
// the formatted prompt does not already embed it.
func augmentPrompt(q PoolQuestion) PoolQuestion {
	snippet := strings.TrimSpace(q.CodeSnippet)
	if snippet == "" || strings.Contains(q.Prompt, snippet) {
		return q
	}
	q.Prompt = fmt.Sprintf("%s\n\n```\n%s\n```", q.Prompt, snippet)
	return q
}

// ScenarioText folds the candidate's scenario metadata into the single text
// column the ledger stores.
func (q PoolQuestion) ScenarioText() string {
	title := strings.TrimSpace(q.ScenarioTitle)
	body := strings.TrimSpace(q.Scenario)
	switch {
	case title != "" && body != "":
		return title + "\n\n" + body
	case title != "":
		return title
	default:
		return body
	}
}
