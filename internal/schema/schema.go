// Package schema defines the structured results produced by the analysis
// stages and enforces their contracts at the LLM boundary. Responses that do
// not decode into these types, or that fail validation, are rejected whole:
// nothing partial is ever handed to the store.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Entity types recognized in triage results.
const (
	EntityPerson       = "person"
	EntityOrganization = "organization"
	EntityLocation     = "location"
	EntityEvent        = "event"
	EntityOther        = "other"
)

// Categories is the fixed article taxonomy.
var Categories = []string{
	"Science", "Technology", "Politics", "Environment", "Health",
	"Business", "Sports", "Entertainment", "Education", "Other",
}

// Sentiments is the nuanced tone taxonomy, deliberately wider than
// positive/negative.
var Sentiments = []string{
	"Optimistic", "Encouraging", "Celebratory", "Critical", "Cautionary",
	"Alarming", "Factual", "Analytical", "Balanced", "Controversial",
	"Sensationalist", "Mixed",
}

// NarrativeFocuses describes what aspect of a story the coverage centers on.
var NarrativeFocuses = []string{
	"Facts/Events", "People/Characters", "Conflict", "Impact/Outcomes",
	"Context/Background", "Opinions/Reactions", "Process/Mechanics",
	"Controversy/Debate",
}

// SourceStyles characterizes the depth of the reporting.
var SourceStyles = []string{"In-depth", "Standard", "Brief/Superficial"}

// Leanings is the political-leaning taxonomy for deep analysis.
var Leanings = []string{
	"Left-leaning", "Right-leaning", "Centrist", "Neutral/Objective", "Unclear",
}

// Confidences grades how sure the analysis itself is.
var Confidences = []string{"High", "Medium", "Low"}

var entityTypes = []string{
	EntityPerson, EntityOrganization, EntityLocation, EntityEvent, EntityOther,
}

// ValidationError reports a schema-invalid analysis response. It is a
// distinct failure class from transport errors so callers can log the two
// separately, but both resolve to the same per-article failed status.
type ValidationError struct {
	Schema string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s response: %s", e.Schema, e.Reason)
}

func invalid(schema, format string, args ...any) error {
	return &ValidationError{Schema: schema, Reason: fmt.Sprintf(format, args...)}
}

// Entity is a named entity extracted during triage.
type Entity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TriageResult is the first-pass classification of an article.
type TriageResult struct {
	Category       string   `json:"category"`
	Sentiment      string   `json:"sentiment"`
	KeyClaims      []string `json:"key_claims"`
	Entities       []Entity `json:"entities"`
	Keywords       []string `json:"keywords"`
	NarrativeFocus string   `json:"narrative_focus"`
	SourceStyle    string   `json:"source_style"`
	Escalate       bool     `json:"requires_deep_analysis"`
	Rationale      string   `json:"escalation_rationale"`
}

// EntitiesOfType returns the entity names of the given type, in order.
func (r *TriageResult) EntitiesOfType(entityType string) []string {
	var names []string
	for _, e := range r.Entities {
		if e.Type == entityType {
			names = append(names, e.Name)
		}
	}
	return names
}

// Validate checks the result against the triage contract.
func (r *TriageResult) Validate() error {
	if !oneOf(r.Category, Categories) {
		return invalid("triage", "category %q not in taxonomy", r.Category)
	}
	if !oneOf(r.Sentiment, Sentiments) {
		return invalid("triage", "sentiment %q not in taxonomy", r.Sentiment)
	}
	if len(r.KeyClaims) == 0 {
		return invalid("triage", "no key claims")
	}
	if len(r.Keywords) == 0 {
		return invalid("triage", "no keywords")
	}
	for _, e := range r.Entities {
		if e.Name == "" {
			return invalid("triage", "entity with empty name")
		}
		if !oneOf(e.Type, entityTypes) {
			return invalid("triage", "entity type %q not recognized", e.Type)
		}
	}
	if !oneOf(r.NarrativeFocus, NarrativeFocuses) {
		return invalid("triage", "narrative focus %q not in taxonomy", r.NarrativeFocus)
	}
	if !oneOf(r.SourceStyle, SourceStyles) {
		return invalid("triage", "source style %q not in taxonomy", r.SourceStyle)
	}
	if r.Escalate && r.Rationale == "" {
		return invalid("triage", "escalation without rationale")
	}
	return nil
}

// FramingTechnique pairs a named framing device with the text that shows it.
type FramingTechnique struct {
	Technique string `json:"technique"`
	Evidence  string `json:"evidence"`
}

// InformationQuality assesses the factual presentation of an article.
type InformationQuality struct {
	VerifiableClaims    int      `json:"verifiable_claims"`
	CitesSources        bool     `json:"cites_sources"`
	EvidenceTypes       []string `json:"evidence_types"`
	ContextCompleteness string   `json:"context_completeness"`
}

// SourceApproach characterizes the journalism behind an article.
type SourceApproach struct {
	ReportingStyle       string `json:"reporting_style"`
	PerspectiveDiversity string `json:"perspective_diversity"`
	AudienceTargeting    string `json:"audience_targeting"`
}

// DeepAnalysisResult is the escalated bias/quality/framing assessment.
type DeepAnalysisResult struct {
	Leaning            string             `json:"political_leaning"`
	Confidence         string             `json:"confidence"`
	QualityScore       int                `json:"quality_score"`
	Quality            InformationQuality `json:"information_quality"`
	Approach           SourceApproach     `json:"source_approach"`
	Framing            []FramingTechnique `json:"framing_techniques"`
	UniquePerspectives []string           `json:"unique_perspectives"`
	SuspectedOmissions []string           `json:"suspected_omissions"`
}

// Validate checks the result against the deep-analysis contract.
func (r *DeepAnalysisResult) Validate() error {
	if !oneOf(r.Leaning, Leanings) {
		return invalid("deep analysis", "political leaning %q not in taxonomy", r.Leaning)
	}
	if !oneOf(r.Confidence, Confidences) {
		return invalid("deep analysis", "confidence %q not in taxonomy", r.Confidence)
	}
	if r.QualityScore < 1 || r.QualityScore > 5 {
		return invalid("deep analysis", "quality score %d out of range 1-5", r.QualityScore)
	}
	if r.Quality.VerifiableClaims < 0 {
		return invalid("deep analysis", "negative verifiable claim count")
	}
	if r.Approach.ReportingStyle == "" {
		return invalid("deep analysis", "missing reporting style")
	}
	for _, f := range r.Framing {
		if f.Technique == "" {
			return invalid("deep analysis", "framing technique without a name")
		}
	}
	return nil
}

// ComparativeAnalysisResult is the cross-source synthesis for a story group.
// AnchorID, ArticleIDs and GeneratedAt are set by the comparison stage, not
// by the model.
type ComparativeAnalysisResult struct {
	ComparisonID     string            `json:"comparison_id"`
	AnchorID         int64             `json:"anchor_id"`
	ArticleIDs       []int64           `json:"article_ids"`
	Sources          []string          `json:"sources"`
	CoreFacts        []string          `json:"core_facts"`
	Differences      map[string]string `json:"source_differences"`
	InformationGaps  []string          `json:"information_gaps"`
	FramingNarrative string            `json:"framing_comparison"`
	SourceInterests  []string          `json:"source_interests"`
	GeneratedAt      time.Time         `json:"generated_at"`
}

// Validate checks the model-provided portion of the result.
func (r *ComparativeAnalysisResult) Validate() error {
	if len(r.Sources) < 2 {
		return invalid("comparative", "fewer than two sources (%d)", len(r.Sources))
	}
	if len(r.CoreFacts) == 0 {
		return invalid("comparative", "no agreed core facts")
	}
	if len(r.Differences) == 0 {
		return invalid("comparative", "no per-source differences")
	}
	if r.FramingNarrative == "" {
		return invalid("comparative", "missing framing comparison")
	}
	return nil
}

// ParseTriage strictly decodes a triage response.
func ParseTriage(data []byte) (*TriageResult, error) {
	var r TriageResult
	if err := decodeStrict(data, &r); err != nil {
		return nil, invalid("triage", "%v", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// ParseDeepAnalysis strictly decodes a deep-analysis response.
func ParseDeepAnalysis(data []byte) (*DeepAnalysisResult, error) {
	var r DeepAnalysisResult
	if err := decodeStrict(data, &r); err != nil {
		return nil, invalid("deep analysis", "%v", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// ParseComparative strictly decodes a comparative-analysis response.
func ParseComparative(data []byte) (*ComparativeAnalysisResult, error) {
	var r ComparativeAnalysisResult
	if err := decodeStrict(data, &r); err != nil {
		return nil, invalid("comparative", "%v", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// decodeStrict rejects unknown fields so drifted model output fails loudly
// instead of silently dropping data.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func oneOf(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
