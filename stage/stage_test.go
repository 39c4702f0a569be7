package stage

import (
	"strings"
	"testing"

	"github.com/tbxark/brdagent/metadata"
)

func TestLookupDefaultsToFirstStage(t *testing.T) {
	t.Parallel()
	if got := Lookup("nonsense"); got.ID != IdeaRefinement {
		t.Errorf("Lookup(unknown) = %s, want %s", got.ID, IdeaRefinement)
	}
	if got := Lookup(""); got.ID != IdeaRefinement {
		t.Errorf("Lookup(empty) = %s, want %s", got.ID, IdeaRefinement)
	}
}

func TestChainIsLinearAndTerminates(t *testing.T) {
	t.Parallel()
	seen := map[ID]bool{}
	d := First()
	hops := 0
	for {
		if seen[d.ID] {
			t.Fatalf("cycle at %s", d.ID)
		}
		seen[d.ID] = true
		if d.Next == "" {
			break
		}
		d = Lookup(d.Next)
		if hops++; hops > len(All()) {
			t.Fatal("chain longer than registry")
		}
	}
	if !d.Terminal() {
		t.Errorf("last stage %s has %d required fields, want 0", d.ID, len(d.Required))
	}
	if d.ID != BRDReady {
		t.Errorf("chain terminates at %s, want %s", d.ID, BRDReady)
	}
}

func TestRequiredPathsAreDeclared(t *testing.T) {
	t.Parallel()
	for _, d := range All() {
		for _, p := range d.Required {
			if !metadata.KnownPath(p) {
				t.Errorf("stage %s requires undeclared path %q", d.ID, p)
			}
			if !strings.HasPrefix(p, string(d.ID)+".") {
				t.Errorf("stage %s requires foreign path %q", d.ID, p)
			}
		}
	}
}

func TestSatisfiedStageHasNoMissingPaths(t *testing.T) {
	t.Parallel()
	meta := &metadata.Metadata{
		IdeaRefinement: &metadata.IdeaRefinement{
			Idea:                   "a",
			ProblemStatement:       "b",
			TargetAudience:         "c",
			UniqueValueProposition: "d",
			SuccessMetrics:         "e",
		},
	}
	if missing := metadata.MissingPaths(meta, Lookup(IdeaRefinement).Required); len(missing) != 0 {
		t.Errorf("expected no missing paths, got %v", missing)
	}
}

func TestFallbackQuestionMentionsMissing(t *testing.T) {
	t.Parallel()
	d := Lookup(IdeaRefinement)
	q := d.Question([]string{"idea_refinement.problem_statement"}, &metadata.Metadata{})
	if !strings.Contains(q, "problem does this idea solve") {
		t.Errorf("problem statement focus missing from question: %q", q)
	}
}

func TestFieldName(t *testing.T) {
	t.Parallel()
	if got := FieldName("competitive_analysis.competitor_matrix"); got != "competitor matrix" {
		t.Errorf("FieldName = %q", got)
	}
}
