package llm

import (
	"fmt"
	"strings"
)

// SystemPrompt frames every hosted-model request.
const SystemPrompt = `You are the website assistant for a public-service office.
Answer only from the sources provided. Keep answers short and practical.
If the sources do not cover the question, say so and point the user to the service directory.
Never ask for or repeat personal information such as phone numbers, emails or ID numbers.`

// BuildMessages returns the system prompt, a source listing and the
// conversation, ready for a chat-completion API.
func BuildMessages(history []Message, sources []Source) []Message {
	msgs := make([]Message, 0, len(history)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: SystemPrompt})

	if len(sources) > 0 {
		var b strings.Builder
		b.WriteString("Sources:\n")
		for i, s := range sources {
			fmt.Fprintf(&b, "[%d] %s", i+1, s.Title)
			if s.URL != "" {
				fmt.Fprintf(&b, " (%s)", s.URL)
			}
			if s.Summary != "" {
				fmt.Fprintf(&b, ": %s", s.Summary)
			}
			b.WriteString("\n")
		}
		msgs = append(msgs, Message{Role: RoleSystem, Content: b.String()})
	}

	for _, m := range history {
		if m.Role == RoleSystem {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs
}
