package rules

// Rule is a single classification rule from the ruleset artifact. Patterns
// are kept as source strings; compilation happens in the classifier.
type Rule struct {
	ID          string
	Enabled     bool
	Code        string
	Priority    int
	Weight      float64
	IncludeAny  []string
	ExcludeAny  []string
	HintSymptom string
	Guard       string
}

// Outcome describes the winning rule for a piece of text. A nil Outcome
// means the text stays unclassified.
type Outcome struct {
	Code           string
	RuleID         string
	Priority       int
	Weight         float64
	HintSymptom    string
	MatchedInclude string
}
