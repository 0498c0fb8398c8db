package chat

import (
	"regexp"
	"strings"
)

// Query types recognized by the keyword classifier.
const (
	QueryActionItems = "action_items"
	QuerySummary     = "summary"
	QueryDecisions   = "decisions"
	QuerySearch      = "search"
	QueryPeople      = "people"
	QueryTimeline    = "timeline"
	QueryGeneral     = "general"
)

// keywordSet order matters: on a tie the earlier set wins.
type keywordSet struct {
	queryType string
	keywords  []string
}

var keywordSets = []keywordSet{
	{QueryActionItems, []string{
		"todo", "task", "action", "follow up", "assignment", "need to do",
		"action item", "to-do", "deliverable", "responsibility",
	}},
	{QuerySummary, []string{
		"summary", "summarize", "overview", "recap", "main points",
		"what happened", "brief", "gist",
	}},
	{QueryDecisions, []string{
		"decision", "decided", "conclusion", "resolution", "agreed",
		"outcome", "result", "verdict",
	}},
	{QuerySearch, []string{
		"about", "regarding", "mentioned", "discussed", "talked about",
		"find", "search", "look for", "contains",
	}},
	{QueryPeople, []string{
		"who", "person", "people", "participant", "attendee", "speaker",
	}},
	{QueryTimeline, []string{
		"when", "date", "time", "recent", "last week", "yesterday",
		"this month", "latest", "schedule",
	}},
}

var namePattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)

var dateTerms = []string{
	"today", "yesterday", "last week", "this week", "last month", "this month",
}

// Entities are the names and relative dates found in a query.
type Entities struct {
	People []string `json:"people"`
	Dates  []string `json:"dates"`
}

// Analysis is the classifier's verdict on one query.
type Analysis struct {
	Type       string   `json:"type"`
	Confidence int      `json:"confidence"`
	Entities   Entities `json:"entities"`
}

// Classify scores the query against every keyword set: most hits wins,
// declaration order breaks ties, zero hits means general. Confidence is the
// raw hit count.
func Classify(query string) Analysis {
	lower := strings.ToLower(query)

	queryType := QueryGeneral
	confidence := 0
	for _, set := range keywordSets {
		hits := 0
		for _, kw := range set.keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > confidence {
			confidence = hits
			queryType = set.queryType
		}
	}

	return Analysis{
		Type:       queryType,
		Confidence: confidence,
		Entities:   extractEntities(query),
	}
}

// extractEntities finds capitalized sequences up to three words (likely
// names) and the fixed relative-date vocabulary.
func extractEntities(query string) Entities {
	var ents Entities

	for _, m := range namePattern.FindAllString(query, -1) {
		if len(strings.Fields(m)) <= 3 {
			ents.People = append(ents.People, m)
		}
	}

	lower := strings.ToLower(query)
	for _, term := range dateTerms {
		if strings.Contains(lower, term) {
			ents.Dates = append(ents.Dates, term)
		}
	}

	return ents
}
