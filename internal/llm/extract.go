package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractedEntity is one entity the model pulled out of free text.
type ExtractedEntity struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Observations []string `json:"observations"`
}

// ExtractedRelation is one relation the model pulled out of free text.
type ExtractedRelation struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// Extraction is the complete result of conversation-driven auto-extraction.
type Extraction struct {
	Entities  []ExtractedEntity   `json:"entities"`
	Relations []ExtractedRelation `json:"relations"`
}

// ExtractionPrompt builds a strict JSON-only prompt asking the model to pull
// entities and relations out of text.
func ExtractionPrompt(text string) string {
	return fmt.Sprintf(`Extract entities and relations from the text below.

Respond with ONLY a JSON object, no explanation, in exactly this shape:
{"entities":[{"name":"...","type":"person|project|technology|preference|concept|file|service|organization|other","observations":["one self-contained fact"]}],"relations":[{"from":"...","to":"...","type":"knows|works-on|works-at|uses|depends-on|part-of|prefers|located-in|related-to"}]}

Rules:
- Entity names are short and canonical ("Anna", "React"), not sentences.
- Each observation is a complete factual statement understandable on its own.
- Only include relations between entities you listed.
- Empty lists are fine if the text contains nothing memorable.

Text:
%s`, text)
}

// SummarizePrompt builds the prompt used when draining old conversation
// turns into the vector store.
func SummarizePrompt(transcript string) string {
	return fmt.Sprintf(`Summarize the conversation below in 2-4 sentences, keeping every concrete fact (names, dates, decisions, preferences). Respond with only the summary text.

Conversation:
%s`, transcript)
}

// ParseExtraction parses a model response into an Extraction. Models often
// wrap JSON in code fences or prose despite instructions, so the first
// balanced JSON object is located before parsing.
func ParseExtraction(response string) (*Extraction, error) {
	payload := extractJSON(response)

	var out Extraction
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, fmt.Errorf("failed to parse extraction response: %w", err)
	}
	return &out, nil
}

// extractJSON returns the first balanced JSON object in text, tolerating
// markdown fences and surrounding prose.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	depth := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		switch {
		case escape:
			escape = false
		case ch == '\\' && inString:
			escape = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text[start:]
}
