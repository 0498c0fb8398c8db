package quality

import (
	"regexp"
	"strings"
)

// A rule rejects one class of bad transcription output. Rules are evaluated in
// order and short-circuit on the first match, so each one stays independently
// testable and tunable.
type rule struct {
	name   string
	reject func(text string) bool
}

// Stock phrases a speech engine emits on silence or noise instead of speech.
var hallucinationPhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bthanks\s+for\s+watching\b`),
	regexp.MustCompile(`(?i)\bsubscribe\b`),
	regexp.MustCompile(`(?i)\blike\s+and\s+subscribe\b`),
	regexp.MustCompile(`(?i)\bdon'?t\s+forget\s+to\b`),
	regexp.MustCompile(`(?i)\bplease\s+subscribe\b`),
	regexp.MustCompile(`(?i)\bcheck\s+out\s+my\b`),
	regexp.MustCompile(`(?i)\bvisit\s+my\s+website\b`),
}

// Signatures of corrupted audio rather than misheard speech.
var corruptionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[^\w\s]{3,}`),                 // 3+ consecutive symbols
	regexp.MustCompile(`(?i)\b[a-z]{1,2}\d{3,}`),      // short letter run glued to digits
	regexp.MustCompile(`(?i)www\.|\.com|http|@\S+\.`), // URL/email fragments in speech
}

var (
	consonantRun = regexp.MustCompile(`(?i)[bcdfghjklmnpqrstvwxyz]{4,}`)
	nonWordChars = regexp.MustCompile(`[^\w]`)
)

// Engine placeholder tokens, matched on word boundaries so ordinary words
// like "unknown" or "trunk" pass.
var artifactMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bunk\b`),
	regexp.MustCompile(`(?i)\bunintelligible\b`),
	regexp.MustCompile(`(?i)\binaudible\b`),
	regexp.MustCompile(`###`),
}

// Common English function and conversational words used as a coherence floor.
var commonWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(
		"the a an and or but in on at to for of with " +
			"by from up about into through during before after " +
			"above below between among this that these those " +
			"i you he she it we they me him her us them " +
			"my your his hers its our their mine yours ours " +
			"am is are was were be been being have has had " +
			"do does did will would could should may might must " +
			"can shall go come see know get make take give " +
			"think say tell ask work seem feel try leave call " +
			"good new first last long great little own other " +
			"old right big high different small large next early " +
			"young important few public bad same able meeting " +
			"discussion project team business company time " +
			"today tomorrow yesterday now here there where when " +
			"what how why who which okay yes no please thank " +
			"thanks hello hi bye goodbye sorry excuse sure",
	) {
		commonWords[w] = struct{}{}
	}
}

// rejectTooShort rejects near-empty output. The minimum is three characters:
// two-character fragments ("ok", "mm") carry no signal worth archiving.
func rejectTooShort(text string) bool {
	return len(strings.TrimSpace(text)) < 3
}

func rejectHallucination(text string) bool {
	for _, re := range hallucinationPhrases {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// rejectFiller catches stutter artifacts: short inputs where most tokens
// collapse to a single character once punctuation is stripped.
func rejectFiller(text string) bool {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 || len(tokens) > 3 {
		return false
	}
	short := 0
	for _, tok := range tokens {
		if len(nonWordChars.ReplaceAllString(tok, "")) <= 1 {
			short++
		}
	}
	return short*2 > len(tokens)
}

// rejectConsonantRun catches phonetic noise: four consecutive consonant-class
// characters do not occur in ordinary English words.
func rejectConsonantRun(text string) bool {
	for _, word := range strings.Fields(text) {
		clean := nonWordChars.ReplaceAllString(strings.ToLower(word), "")
		if len(clean) > 3 && consonantRun.MatchString(clean) {
			return true
		}
	}
	return false
}

type scriptRange struct {
	name     string
	lo, hi   rune
}

var scriptRanges = []scriptRange{
	{"cyrillic", 0x0400, 0x04FF},
	{"greek", 0x0370, 0x03FF},
	{"hebrew", 0x0590, 0x05FF},
	{"arabic", 0x0600, 0x06FF},
	{"hiragana", 0x3040, 0x309F},
	{"katakana", 0x30A0, 0x30FF},
	{"han", 0x4E00, 0x9FFF},
	{"hangul", 0xAC00, 0xD7AF},
}

// rejectMixedScripts catches cross-script corruption: ASCII and non-ASCII
// inside one token, or more than two distinct non-Latin scripts overall.
func rejectMixedScripts(text string) bool {
	for _, tok := range strings.Fields(text) {
		hasASCII, hasOther := false, false
		for _, r := range tok {
			if r < 128 {
				if r != '\'' && r != '-' {
					hasASCII = true
				}
			} else {
				hasOther = true
			}
		}
		if hasASCII && hasOther {
			return true
		}
	}

	seen := map[string]struct{}{}
	for _, r := range text {
		for _, sr := range scriptRanges {
			if r >= sr.lo && r <= sr.hi {
				seen[sr.name] = struct{}{}
			}
		}
	}
	return len(seen) > 2
}

// rejectLowCoherence applies a common-word floor to inputs of four or more
// tokens: genuine English speech rarely drops below 30% function words.
func rejectLowCoherence(text string) bool {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) < 4 {
		return false
	}
	common := 0
	for _, tok := range tokens {
		if _, ok := commonWords[strings.Trim(tok, ".,!?;:")]; ok {
			common++
		}
	}
	return float64(common)/float64(len(tokens)) < 0.3
}

// repeatedRun reports whether any rune repeats n or more times consecutively.
// RE2 has no backreferences, so this is a plain scan.
func repeatedRun(text string, n int) bool {
	var prev rune
	run := 0
	for _, r := range strings.ToLower(text) {
		if r == prev {
			run++
			if run >= n {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

func rejectCorruption(text string) bool {
	for _, re := range corruptionPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	if repeatedRun(text, 5) {
		return true
	}
	for _, re := range artifactMarkers {
		if re.MatchString(text) {
			return true
		}
	}
	for _, word := range strings.Fields(text) {
		if len(word) > 30 {
			return true
		}
	}
	return false
}
