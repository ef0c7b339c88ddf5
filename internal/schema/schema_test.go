package schema

import (
	"errors"
	"testing"
)

func validTriageJSON() []byte {
	return []byte(`{
		"category": "Politics",
		"sentiment": "Critical",
		"key_claims": ["The bill passed with a narrow majority"],
		"entities": [{"name": "Senate", "type": "organization"}],
		"keywords": ["legislation", "vote", "majority"],
		"narrative_focus": "Conflict",
		"source_style": "Standard",
		"requires_deep_analysis": true,
		"escalation_rationale": "Contested framing across outlets"
	}`)
}

func TestParseTriage(t *testing.T) {
	r, err := ParseTriage(validTriageJSON())
	if err != nil {
		t.Fatalf("ParseTriage: %v", err)
	}
	if r.Category != "Politics" {
		t.Errorf("category = %q, want Politics", r.Category)
	}
	if !r.Escalate {
		t.Error("expected escalation flag set")
	}
	if got := r.EntitiesOfType(EntityOrganization); len(got) != 1 || got[0] != "Senate" {
		t.Errorf("EntitiesOfType(organization) = %v", got)
	}
}

func TestParseTriageRejectsUnknownCategory(t *testing.T) {
	data := []byte(`{
		"category": "Gossip",
		"sentiment": "Factual",
		"key_claims": ["x"],
		"entities": [],
		"keywords": ["y"],
		"narrative_focus": "Facts/Events",
		"source_style": "Brief/Superficial",
		"requires_deep_analysis": false,
		"escalation_rationale": ""
	}`)
	if _, err := ParseTriage(data); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestParseTriageRejectsUnknownFields(t *testing.T) {
	data := []byte(`{"category": "Other", "surprise": true}`)
	_, err := ParseTriage(data)
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
}

func TestParseTriageEscalationNeedsRationale(t *testing.T) {
	data := []byte(`{
		"category": "Health",
		"sentiment": "Alarming",
		"key_claims": ["x"],
		"entities": [],
		"keywords": ["y"],
		"narrative_focus": "Impact/Outcomes",
		"source_style": "In-depth",
		"requires_deep_analysis": true,
		"escalation_rationale": ""
	}`)
	if _, err := ParseTriage(data); err == nil {
		t.Fatal("expected error for escalation without rationale")
	}
}

func TestParseTriageRejectsBadEntityType(t *testing.T) {
	data := []byte(`{
		"category": "Science",
		"sentiment": "Factual",
		"key_claims": ["x"],
		"entities": [{"name": "CERN", "type": "lab"}],
		"keywords": ["y"],
		"narrative_focus": "Facts/Events",
		"source_style": "Standard",
		"requires_deep_analysis": false,
		"escalation_rationale": ""
	}`)
	if _, err := ParseTriage(data); err == nil {
		t.Fatal("expected error for unknown entity type")
	}
}

func TestParseDeepAnalysis(t *testing.T) {
	data := []byte(`{
		"political_leaning": "Centrist",
		"confidence": "High",
		"quality_score": 4,
		"information_quality": {
			"verifiable_claims": 7,
			"cites_sources": true,
			"evidence_types": ["official statement", "statistics"],
			"context_completeness": "Partial"
		},
		"source_approach": {
			"reporting_style": "investigative",
			"perspective_diversity": "two sides quoted",
			"audience_targeting": "general"
		},
		"framing_techniques": [{"technique": "emphasis", "evidence": "headline leads with cost"}],
		"unique_perspectives": ["interviews affected workers"],
		"suspected_omissions": ["no industry response"]
	}`)
	r, err := ParseDeepAnalysis(data)
	if err != nil {
		t.Fatalf("ParseDeepAnalysis: %v", err)
	}
	if r.QualityScore != 4 {
		t.Errorf("quality score = %d, want 4", r.QualityScore)
	}
	if !r.Quality.CitesSources {
		t.Error("expected cites_sources true")
	}
}

func TestParseDeepAnalysisRejectsScoreOutOfRange(t *testing.T) {
	data := []byte(`{
		"political_leaning": "Unclear",
		"confidence": "Low",
		"quality_score": 9,
		"information_quality": {"verifiable_claims": 0, "cites_sources": false, "evidence_types": [], "context_completeness": "Minimal"},
		"source_approach": {"reporting_style": "wire copy", "perspective_diversity": "single", "audience_targeting": "general"},
		"framing_techniques": [],
		"unique_perspectives": [],
		"suspected_omissions": []
	}`)
	if _, err := ParseDeepAnalysis(data); err == nil {
		t.Fatal("expected error for quality score out of range")
	}
}

func TestParseComparative(t *testing.T) {
	data := []byte(`{
		"sources": ["Outlet A", "Outlet B"],
		"core_facts": ["Both report the plant closure"],
		"source_differences": {"Outlet A": "focuses on job losses", "Outlet B": "focuses on shareholder value"},
		"information_gaps": ["Outlet B omits the union statement"],
		"framing_comparison": "A frames as community impact, B as business decision.",
		"source_interests": ["B is financially focused"]
	}`)
	r, err := ParseComparative(data)
	if err != nil {
		t.Fatalf("ParseComparative: %v", err)
	}
	if len(r.Differences) != 2 {
		t.Errorf("differences = %d entries, want 2", len(r.Differences))
	}
}

func TestParseComparativeNeedsTwoSources(t *testing.T) {
	data := []byte(`{
		"sources": ["Outlet A"],
		"core_facts": ["x"],
		"source_differences": {"Outlet A": "y"},
		"information_gaps": [],
		"framing_comparison": "z",
		"source_interests": []
	}`)
	if _, err := ParseComparative(data); err == nil {
		t.Fatal("expected error for single-source comparison")
	}
}
