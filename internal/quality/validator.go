// Package quality filters garbled, hallucinated, and corrupted transcription
// output before it reaches a session transcript or the vector index. It is a
// heuristic, not a classifier: rejecting the odd piece of valid but unusual
// speech is an accepted cost of keeping hallucinations out of the archive.
package quality

// Validator applies an ordered list of rejection rules to candidate text.
type Validator struct {
	rules []rule
}

// NewValidator creates a validator with the default rule set.
func NewValidator() *Validator {
	return &Validator{
		rules: []rule{
			{"too_short", rejectTooShort},
			{"hallucination", rejectHallucination},
			{"filler", rejectFiller},
			{"consonant_run", rejectConsonantRun},
			{"mixed_scripts", rejectMixedScripts},
			{"low_coherence", rejectLowCoherence},
			{"corruption", rejectCorruption},
		},
	}
}

// IsAcceptable reports whether text should be admitted downstream.
func (v *Validator) IsAcceptable(text string) bool {
	_, rejected := v.Inspect(text)
	return !rejected
}

// Inspect returns the name of the first rule that rejects text, if any.
func (v *Validator) Inspect(text string) (ruleName string, rejected bool) {
	for _, r := range v.rules {
		if r.reject(text) {
			return r.name, true
		}
	}
	return "", false
}
