package chat

import (
	"fmt"
	"strings"

	"github.com/meetscribe/meetscribe/internal/domain"
)

// buildPrompt assembles the meeting context for the generator. Per-type
// extras: action items for action_items queries, key points for summary
// queries. Transcript excerpts are capped so one long meeting cannot crowd
// out the rest.
func buildPrompt(query string, analysis Analysis, meetings []domain.ScoredMeeting, maxMeetings, excerptChars int) string {
	var context strings.Builder

	for i, sm := range meetings {
		if i >= maxMeetings {
			break
		}
		m := sm.Meeting

		if i > 0 {
			context.WriteString("\n\n")
		}
		fmt.Fprintf(&context, "Meeting %d: %s\n", i+1, m.Title)
		fmt.Fprintf(&context, "Date: %s\n", m.CreatedAt.Format("2006-01-02 15:04"))

		summary := m.Summary
		if summary == "" {
			summary = "No summary available"
		}
		fmt.Fprintf(&context, "Summary: %s", summary)

		if analysis.Type == QueryActionItems && len(m.ActionItems) > 0 {
			fmt.Fprintf(&context, "\nAction Items: %s", strings.Join(m.ActionItems, ", "))
		}
		if analysis.Type == QuerySummary && len(m.KeyPoints) > 0 {
			fmt.Fprintf(&context, "\nKey Points: %s", strings.Join(m.KeyPoints, ", "))
		}

		if m.Transcript != "" {
			fmt.Fprintf(&context, "\nTranscript Excerpt: %s...", headRunes(m.Transcript, excerptChars))
		}
	}

	return fmt.Sprintf(`You are a helpful meeting assistant. Answer the user's question based on the meeting information provided.

User Question: %s
Query Type: %s

Meeting Information:
%s

Instructions:
- Provide a direct, helpful answer to the user's question
- Use specific information from the meetings when possible
- If asking about action items/todos, list them clearly
- If asking for summaries, provide concise overviews
- If the information isn't available in the meetings, say so
- Be conversational and friendly
- Format your response clearly with bullet points or numbered lists when appropriate

Answer:`, query, analysis.Type, context.String())
}

func headRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
