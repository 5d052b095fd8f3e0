package oracle

import (
	"encoding/json"
	"strings"
)

const systemPrompt = `You fill in forms from spoken conversations.

You receive the fields currently shown on a form with their present values,
followed by a transcript of the conversation so far. Work out which facts in
the transcript belong in which field.

Rules:
- Reply with one JSON object and nothing else.
- Use the field labels exactly as given as keys.
- Each value is either a string, or an object {"value": "...", "confidence": 0.0-1.0}.
- Leave out any field you are not confident about. Never invent facts.
- Write values in the conventional written form for the field (digits for numbers, proper capitalization for names).
- For checkboxes answer "true" or "false".`

// BuildPrompt renders the user message sent to the model: the fields as a
// JSON object followed by the transcript.
func BuildPrompt(history string, fields map[string]string) string {
	if fields == nil {
		fields = map[string]string{}
	}
	// encoding/json sorts map keys, which keeps the prompt stable.
	listing, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		listing = []byte("{}")
	}
	var b strings.Builder
	b.WriteString("Fields:\n")
	b.Write(listing)
	b.WriteString("\n\nTranscript:\n")
	b.WriteString(strings.TrimSpace(history))
	b.WriteString("\n")
	return b.String()
}
