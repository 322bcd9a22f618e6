package plan

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TaskResult is the output of one research task.
type TaskResult struct {
	Kind        string        `json:"kind"`
	DisplayName string        `json:"display_name"`
	Content     string        `json:"content,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration_ms"`
	CompletedAt time.Time     `json:"completed_at"`
}

// Succeeded reports whether the task produced usable content.
func (r TaskResult) Succeeded() bool {
	return r.Error == "" && r.Content != ""
}

// ComparisonStat records a company that was requested for comparison
// but could not be resolved, so the plan can disclose the gap.
type ComparisonStat struct {
	Company string `json:"company"`
	Reason  string `json:"reason"`
}

// Metadata carries run-level facts attached to a plan.
type Metadata struct {
	UsedExistingData    bool             `json:"used_existing_data"`
	DocumentCount       int              `json:"document_count"`
	QualityScore        float64          `json:"quality_score"`
	PagesFetched        int              `json:"pages_fetched"`
	References          []string         `json:"references,omitempty"`
	ExtraRequest        string           `json:"extra_request,omitempty"`
	AssociatedCompanies []string         `json:"associated_companies,omitempty"`
	Mode                string           `json:"mode,omitempty"`
	FailedComparisons   []ComparisonStat `json:"failed_comparisons,omitempty"`
	CredentialAttempts  int              `json:"credential_attempts,omitempty"`
}

// AccountPlan is the aggregated result of a research run.
type AccountPlan struct {
	RunID       string                `json:"run_id"`
	Company     string                `json:"company"`
	Vendor      string                `json:"vendor"`
	Sections    map[string]TaskResult `json:"sections"`
	Metadata    Metadata              `json:"metadata"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt time.Time             `json:"completed_at"`
}

// New creates an empty plan for a run.
func New(runID, company, vendor string) *AccountPlan {
	return &AccountPlan{
		RunID:     runID,
		Company:   company,
		Vendor:    vendor,
		Sections:  make(map[string]TaskResult),
		StartedAt: time.Now(),
	}
}

// AddResult records a task result, overwriting any previous result for
// the same kind.
func (p *AccountPlan) AddResult(result TaskResult) {
	p.Sections[result.Kind] = result
}

// Section returns the result for a task kind if present.
func (p *AccountPlan) Section(kind string) (TaskResult, bool) {
	r, ok := p.Sections[kind]
	return r, ok
}

// SucceededCount returns how many sections produced content.
func (p *AccountPlan) SucceededCount() int {
	n := 0
	for _, r := range p.Sections {
		if r.Succeeded() {
			n++
		}
	}
	return n
}

// FailedKinds lists section kinds that errored, sorted for stable output.
func (p *AccountPlan) FailedKinds() []string {
	var kinds []string
	for kind, r := range p.Sections {
		if !r.Succeeded() {
			kinds = append(kinds, kind)
		}
	}
	sort.Strings(kinds)
	return kinds
}

// sectionOrder fixes the rendering order of known sections; unknown
// kinds sort after, alphabetically.
var sectionOrder = map[string]int{
	"overview":        0,
	"product_fit":     1,
	"goals":           2,
	"dept_mapping":    3,
	"synergy":         4,
	"pricing":         5,
	"roi":             6,
	"custom_request":  7,
	"additional_data": 8,
}

func (p *AccountPlan) orderedKinds() []string {
	kinds := make([]string, 0, len(p.Sections))
	for kind := range p.Sections {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool {
		oi, iok := sectionOrder[kinds[i]]
		oj, jok := sectionOrder[kinds[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok:
			return true
		case jok:
			return false
		default:
			return kinds[i] < kinds[j]
		}
	})
	return kinds
}

// Markdown renders the plan as a document. Failed sections render a
// short notice instead of content so the reader sees the gap.
func (p *AccountPlan) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Account Plan: %s\n\n", p.Company)
	if p.Vendor != "" {
		fmt.Fprintf(&b, "Prepared for %s\n\n", p.Vendor)
	}

	for _, kind := range p.orderedKinds() {
		r := p.Sections[kind]
		fmt.Fprintf(&b, "## %s\n\n", r.DisplayName)
		if r.Succeeded() {
			b.WriteString(strings.TrimSpace(r.Content))
		} else {
			fmt.Fprintf(&b, "_This section could not be generated: %s_", r.Error)
		}
		b.WriteString("\n\n")
	}

	if len(p.Metadata.FailedComparisons) > 0 {
		b.WriteString("## Data Notes\n\n")
		for _, fc := range p.Metadata.FailedComparisons {
			fmt.Fprintf(&b, "- Comparison data for %s was unavailable: %s\n", fc.Company, fc.Reason)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// JSON serializes the plan.
func (p *AccountPlan) JSON() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}
