package llm

// ParamSet is one combination of request parameters to try against a
// backend. OpenAI-compatible servers disagree on which token-limit field
// they accept and whether temperature may be set, so requests walk an
// ordered list of these until one is accepted.
type ParamSet struct {
	// UseCompletionTokens selects max_completion_tokens over the legacy
	// max_tokens field.
	UseCompletionTokens bool
	// Temperature is included in the request when non-nil.
	Temperature *float64
}

// DefaultParamSets returns the negotiation order: newest parameter shape
// first, most constrained variant first.
func DefaultParamSets() []ParamSet {
	temp := 0.7
	return []ParamSet{
		{UseCompletionTokens: true, Temperature: &temp},
		{UseCompletionTokens: true, Temperature: nil},
		{UseCompletionTokens: false, Temperature: &temp},
		{UseCompletionTokens: false, Temperature: nil},
	}
}
