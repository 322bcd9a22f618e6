package tasks

// Kind identifies one research task. The set is closed: plans are
// assembled from these sections and nothing else.
type Kind string

const (
	KindOverview      Kind = "overview"
	KindProductFit    Kind = "product_fit"
	KindGoals         Kind = "goals"
	KindDeptMapping   Kind = "dept_mapping"
	KindSynergy       Kind = "synergy"
	KindPricing       Kind = "pricing"
	KindROI           Kind = "roi"
	KindCustomRequest Kind = "custom_request"
)

var displayNames = map[Kind]string{
	KindOverview:      "Company Overview & Value Proposition",
	KindProductFit:    "Product-Goal Alignment",
	KindGoals:         "Long-term Strategic Goals",
	KindDeptMapping:   "Departments & Decision Makers",
	KindSynergy:       "Partnership Synergies",
	KindPricing:       "Pricing & Packaging Recommendation",
	KindROI:           "ROI & Business Impact Projections",
	KindCustomRequest: "Additional Data Request",
}

// DefaultSet is the battery of tasks a full research run dispatches.
// KindCustomRequest is excluded: it only runs on demand for follow-ups.
var DefaultSet = []Kind{
	KindOverview,
	KindProductFit,
	KindGoals,
	KindDeptMapping,
	KindSynergy,
	KindPricing,
	KindROI,
}

// Valid reports whether k is a known task kind.
func (k Kind) Valid() bool {
	_, ok := displayNames[k]
	return ok
}

// DisplayName returns the section heading for the task.
func (k Kind) DisplayName() string {
	if name, ok := displayNames[k]; ok {
		return name
	}
	return string(k)
}
