package relay

import (
	"encoding/json"
	"strings"
)

// chunkPayload is the superset of upstream payload shapes we know how to read.
// Streaming chunks carry choices[0].delta.content, non-streaming responses
// choices[0].message.content, and legacy completion endpoints choices[0].text.
type chunkPayload struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// extractor pulls textual content out of a decoded payload; the second return
// reports whether this strategy applied at all.
type extractor func(p *chunkPayload) (string, bool)

// Ordered: first strategy that applies wins.
var extractors = []extractor{
	deltaContent,
	messageContent,
	textField,
}

func deltaContent(p *chunkPayload) (string, bool) {
	if c := p.Choices[0].Delta.Content; c != "" {
		// Delta content is forwarded verbatim: leading/trailing spaces are
		// significant when the client concatenates chunks.
		return c, true
	}
	return "", false
}

func messageContent(p *chunkPayload) (string, bool) {
	if c := p.Choices[0].Message.Content; c != "" {
		return strings.TrimSpace(c), true
	}
	return "", false
}

func textField(p *chunkPayload) (string, bool) {
	if c := p.Choices[0].Text; c != "" {
		return strings.TrimSpace(c), true
	}
	return "", false
}

// extract decodes one raw payload string and applies the extraction strategies
// in order. ok is false when the payload is not JSON (or carries no choices),
// which the orchestrator treats as a droppable diagnostic, never a fatal
// condition. finished reports a finish-reason marker on the payload.
func extract(raw string) (content string, finished bool, ok bool) {
	var p chunkPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return "", false, false
	}
	if len(p.Choices) == 0 {
		return "", false, false
	}

	finished = p.Choices[0].FinishReason != ""

	for _, ex := range extractors {
		if c, applied := ex(&p); applied {
			return c, finished, true
		}
	}
	return "", finished, true
}
