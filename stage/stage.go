// Package stage declares the fixed, ordered table of requirement-gathering
// stages. The stage graph is a simple path: each stage names its successor
// and the chain terminates in a stage with no required fields.
package stage

import (
	"fmt"
	"strings"

	"github.com/tbxark/brdagent/metadata"
)

type ID string

const (
	IdeaRefinement      ID = "idea_refinement"
	MarketAnalysis      ID = "market_analysis"
	CompetitiveAnalysis ID = "competitive_analysis"
	ProductDefinition   ID = "product_definition"
	ProjectConstraints  ID = "project_constraints"
	BRDReady            ID = "brd_ready"
)

// Definition describes one stage. Required order defines the tie-break for
// what to ask next; Question is the deterministic fallback when the engine
// produced no usable prose. Next is empty only for the terminal stage.
type Definition struct {
	ID       ID
	Required []string
	Question func(missing []string, meta *metadata.Metadata) string
	Next     ID
}

// Terminal reports whether the stage has nothing left to collect.
func (d *Definition) Terminal() bool {
	return len(d.Required) == 0
}

var order = []*Definition{
	{
		ID: IdeaRefinement,
		Required: []string{
			"idea_refinement.idea",
			"idea_refinement.problem_statement",
			"idea_refinement.target_audience",
			"idea_refinement.unique_value_proposition",
			"idea_refinement.success_metrics",
		},
		Question: func(missing []string, meta *metadata.Metadata) string {
			focus := "Provide details for one of the missing fields above to proceed."
			for _, p := range missing {
				if p == "idea_refinement.problem_statement" {
					focus = "What specific user or business problem does this idea solve? Please be concrete."
					break
				}
			}
			return fmt.Sprintf("We're in Idea Refinement. I still need: %s.\nLet's focus on the most critical one first. %s",
				strings.Join(missing, ", "), focus)
		},
		Next: MarketAnalysis,
	},
	{
		ID: MarketAnalysis,
		Required: []string{
			"market_analysis.market_size",
			"market_analysis.trends",
			"market_analysis.customer_segments",
			"market_analysis.pricing_strategy",
		},
		Question: func(missing []string, meta *metadata.Metadata) string {
			return fmt.Sprintf("Market Analysis: missing %s. What's your input for the first one?", strings.Join(missing, ", "))
		},
		Next: CompetitiveAnalysis,
	},
	{
		ID: CompetitiveAnalysis,
		Required: []string{
			"competitive_analysis.competitors",
			"competitive_analysis.competitor_matrix",
			"competitive_analysis.differentiation",
			"competitive_analysis.barriers_to_entry",
		},
		Question: func(missing []string, meta *metadata.Metadata) string {
			return fmt.Sprintf("Competitive Analysis: I still need %s. Let's fill them one by one.", strings.Join(missing, ", "))
		},
		Next: ProductDefinition,
	},
	{
		ID: ProductDefinition,
		Required: []string{
			"product_definition.core_features",
			"product_definition.user_workflows",
			"product_definition.data_types",
			"product_definition.integration_requirements",
		},
		Question: func(missing []string, meta *metadata.Metadata) string {
			return fmt.Sprintf("Product Definition: I still need %s. Let's start with the most important — what are the core features of your product?", strings.Join(missing, ", "))
		},
		Next: ProjectConstraints,
	},
	{
		ID: ProjectConstraints,
		Required: []string{
			"project_constraints.timeline",
			"project_constraints.budget_tier",
			"project_constraints.team_size",
			"project_constraints.technical_complexity_preference",
		},
		Question: func(missing []string, meta *metadata.Metadata) string {
			return fmt.Sprintf("Project Constraints: Please specify %s. For example, what's your expected timeline and budget tier?", strings.Join(missing, ", "))
		},
		Next: BRDReady,
	},
	{
		ID:       BRDReady,
		Required: nil,
		Question: func(missing []string, meta *metadata.Metadata) string {
			return "All sections are complete. I can generate your BRD now. Proceed?"
		},
	},
}

var byID = func() map[ID]*Definition {
	m := make(map[ID]*Definition, len(order))
	for _, d := range order {
		m[d.ID] = d
	}
	return m
}()

// First returns the entry stage of the chain.
func First() *Definition {
	return order[0]
}

// Lookup returns the definition for id, defaulting to the first stage when
// id is unknown or empty.
func Lookup(id ID) *Definition {
	if d, ok := byID[id]; ok {
		return d
	}
	return First()
}

// All returns the stage chain in order.
func All() []*Definition {
	out := make([]*Definition, len(order))
	copy(out, order)
	return out
}

// FieldName turns the last path segment into a user-facing name, e.g.
// "market_analysis.market_size" -> "market size".
func FieldName(path string) string {
	parts := strings.Split(path, ".")
	return strings.ReplaceAll(parts[len(parts)-1], "_", " ")
}
