package tasks

import (
	"fmt"
	"strings"

	"github.com/praxian-ai/scout/internal/knowledge"
)

// Input carries everything a task prompt needs.
type Input struct {
	Company string
	Vendor  string
	// Peers are companies requested for comparison
	Peers []string
	// Notes are caller-supplied reference notes added to the context
	Notes       []string
	Documents   []knowledge.SearchHit
	Reference   []knowledge.SearchHit
	CustomQuery string
}

type spec struct {
	// retrievalQuery drives similarity search for task context
	retrievalQuery string
	// usesReference pulls vendor reference material into the prompt
	usesReference bool
	instructions  string
}

var specs = map[Kind]spec{
	KindOverview: {
		retrievalQuery: "company overview business model products services value proposition",
		instructions: `Write a company overview and value proposition analysis.
Cover what the company does, its main products or services, its market
position, and what it values when buying from vendors.`,
	},
	KindProductFit: {
		retrievalQuery: "strategic goals priorities initiatives technology adoption",
		usesReference:  true,
		instructions: `Analyze how %VENDOR%'s offerings align with this company's goals.
Map each relevant offering to a stated or inferred company goal and rate
the strength of the fit. Be specific about which problems get solved.`,
	},
	KindGoals: {
		retrievalQuery: "long term strategic goals expansion growth plans roadmap",
		instructions: `Identify the company's long-term strategic goals.
Distinguish stated goals (from public material) from inferred goals, and
note the time horizon where possible.`,
	},
	KindDeptMapping: {
		retrievalQuery: "departments leadership team executives org structure decision makers",
		instructions: `Map the departments and likely decision makers relevant to a
vendor relationship. For each department, name known leaders and
describe their likely role in a buying decision.`,
	},
	KindSynergy: {
		retrievalQuery: "partnerships integrations ecosystem technology stack collaboration",
		usesReference:  true,
		instructions: `Identify partnership synergies between %VENDOR% and this company.
Consider existing partnerships, integration opportunities, and shared
market positioning.`,
	},
	KindPricing: {
		retrievalQuery: "company size employees revenue budget procurement",
		instructions: `Recommend a pricing and packaging approach for selling to this
company. Ground the recommendation in company size, maturity, and likely
budget constraints visible in the research.`,
	},
	KindROI: {
		retrievalQuery: "workforce hiring costs efficiency metrics business performance",
		instructions: `Project the ROI and business impact this company could expect.
Express impact ranges rather than single figures and state the
assumptions behind each projection.`,
	},
	KindCustomRequest: {
		retrievalQuery: "", // derived from the custom query
		instructions: `Answer the following request using the research context:
%QUERY%

If the context does not support a confident answer, say what is missing
rather than guessing.`,
	},
}

// retrievalQueryFor returns the similarity-search query for a task.
func retrievalQueryFor(kind Kind, in Input) string {
	s := specs[kind]
	if kind == KindCustomRequest {
		return in.CustomQuery
	}
	return s.retrievalQuery
}

// buildPrompt renders the full prompt for a task.
func buildPrompt(kind Kind, in Input) string {
	s := specs[kind]

	var b strings.Builder
	fmt.Fprintf(&b, "You are preparing the %q section of an account plan for %s.\n\n", kind.DisplayName(), in.Company)

	if len(in.Documents) > 0 {
		b.WriteString("Research context:\n")
		for i, hit := range in.Documents {
			fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, hit.Document.Title, hit.Document.Content)
		}
	}

	if s.usesReference && len(in.Reference) > 0 {
		fmt.Fprintf(&b, "About %s:\n", in.Vendor)
		for _, hit := range in.Reference {
			fmt.Fprintf(&b, "%s\n\n", hit.Document.Content)
		}
	}

	if len(in.Peers) > 0 {
		fmt.Fprintf(&b, "Where relevant, compare %s with %s.\n\n", in.Company, strings.Join(in.Peers, ", "))
	}
	if len(in.Notes) > 0 {
		b.WriteString("Notes from the requester:\n")
		for _, note := range in.Notes {
			fmt.Fprintf(&b, "- %s\n", note)
		}
		b.WriteString("\n")
	}

	instructions := s.instructions
	instructions = strings.ReplaceAll(instructions, "%VENDOR%", in.Vendor)
	instructions = strings.ReplaceAll(instructions, "%QUERY%", in.CustomQuery)
	b.WriteString(instructions)
	b.WriteString("\n\nWrite in clear prose with short sections. Cite context numbers like [1] where a claim comes from the research.")

	return b.String()
}

const systemPrompt = `You are a B2B account research analyst. You write grounded,
specific analysis from the research context you are given, and you flag
uncertainty instead of inventing facts.`
