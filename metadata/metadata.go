// Package metadata holds the stage-keyed project metadata document and the
// dotted-path operations used by the turn processor. The document is a closed
// shape: one optional record per stage, string or string-list leaves. Paths
// that name an unknown stage or field are rejected at the boundary.
package metadata

import (
	"reflect"
	"strings"
)

type IdeaRefinement struct {
	Idea                   string `json:"idea,omitempty" jsonschema:"description=One-sentence description of the product idea"`
	ProblemStatement       string `json:"problem_statement,omitempty" jsonschema:"description=The user or business problem the idea solves"`
	TargetAudience         string `json:"target_audience,omitempty" jsonschema:"description=Who the product is for"`
	UniqueValueProposition string `json:"unique_value_proposition,omitempty" jsonschema:"description=What makes the product stand out"`
	SuccessMetrics         string `json:"success_metrics,omitempty" jsonschema:"description=How success will be measured"`
}

type MarketAnalysis struct {
	MarketSize       string `json:"market_size,omitempty" jsonschema:"description=Estimated size of the addressable market"`
	Trends           string `json:"trends,omitempty" jsonschema:"description=Relevant market trends"`
	CustomerSegments string `json:"customer_segments,omitempty" jsonschema:"description=Distinct customer segments"`
	PricingStrategy  string `json:"pricing_strategy,omitempty" jsonschema:"description=How the product will be priced"`
}

type CompetitiveAnalysis struct {
	Competitors      []string `json:"competitors,omitempty" jsonschema:"description=Names of direct competitors"`
	CompetitorMatrix string   `json:"competitor_matrix,omitempty" jsonschema:"description=Short comparison summary of competitors"`
	Differentiation  string   `json:"differentiation,omitempty" jsonschema:"description=How the product differs from competitors"`
	BarriersToEntry  string   `json:"barriers_to_entry,omitempty" jsonschema:"description=Barriers protecting the product from competition"`
}

type ProductDefinition struct {
	CoreFeatures            string `json:"core_features,omitempty" jsonschema:"description=Core features of the product"`
	UserWorkflows           string `json:"user_workflows,omitempty" jsonschema:"description=Main user workflows"`
	DataTypes               string `json:"data_types,omitempty" jsonschema:"description=Kinds of data the product handles"`
	IntegrationRequirements string `json:"integration_requirements,omitempty" jsonschema:"description=Required third-party integrations"`
}

type ProjectConstraints struct {
	Timeline                      string `json:"timeline,omitempty" jsonschema:"description=Expected delivery timeline"`
	BudgetTier                    string `json:"budget_tier,omitempty" jsonschema:"description=Budget tier for the project"`
	TeamSize                      string `json:"team_size,omitempty" jsonschema:"description=Size of the delivery team"`
	TechnicalComplexityPreference string `json:"technical_complexity_preference,omitempty" jsonschema:"description=Preferred level of technical complexity"`
}

// Metadata accumulates everything collected so far, keyed by stage. A merge
// may add or overwrite leaves but never drops an existing stage record.
type Metadata struct {
	IdeaRefinement      *IdeaRefinement      `json:"idea_refinement,omitempty" jsonschema:"description=Idea refinement fields"`
	MarketAnalysis      *MarketAnalysis      `json:"market_analysis,omitempty" jsonschema:"description=Market analysis fields"`
	CompetitiveAnalysis *CompetitiveAnalysis `json:"competitive_analysis,omitempty" jsonschema:"description=Competitive analysis fields"`
	ProductDefinition   *ProductDefinition   `json:"product_definition,omitempty" jsonschema:"description=Product definition fields"`
	ProjectConstraints  *ProjectConstraints  `json:"project_constraints,omitempty" jsonschema:"description=Project constraint fields"`
}

var allowedPaths = buildAllowedPaths()

// AllFieldPaths returns every valid "stage.field" path in declaration order.
func AllFieldPaths() []string {
	out := make([]string, len(allowedPaths))
	copy(out, allowedPaths)
	return out
}

// KnownPath reports whether path names a declared stage field.
func KnownPath(path string) bool {
	for _, p := range allowedPaths {
		if p == path {
			return true
		}
	}
	return false
}

func buildAllowedPaths() []string {
	var paths []string
	typ := reflect.TypeOf(Metadata{})
	for i := 0; i < typ.NumField(); i++ {
		stageField := typ.Field(i)
		stageName := jsonFieldName(stageField)
		if stageName == "" {
			continue
		}
		stageType := stageField.Type
		if stageType.Kind() == reflect.Ptr {
			stageType = stageType.Elem()
		}
		for j := 0; j < stageType.NumField(); j++ {
			name := jsonFieldName(stageType.Field(j))
			if name == "" {
				continue
			}
			paths = append(paths, stageName+"."+name)
		}
	}
	return paths
}

func jsonFieldName(field reflect.StructField) string {
	if !field.IsExported() {
		return ""
	}
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name
	}
	name := strings.Split(tag, ",")[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}
