package upstream

import "streamgate/internal/session"

// Request shape we send upstream (OpenAI-style).
type providerChatRequest struct {
	Model    string            `json:"model"`
	Messages []session.Message `json:"messages"`
	Stream   bool              `json:"stream,omitempty"`
}

// Choice for non-streaming responses.
type providerChatChoice struct {
	Index        int             `json:"index"`
	Message      session.Message `json:"message"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

type providerChatResponse struct {
	ID      string               `json:"id"`
	Object  string               `json:"object"`
	Created int64                `json:"created"`
	Model   string               `json:"model"`
	Choices []providerChatChoice `json:"choices"`
}

type providerErrorResponse struct {
	Error struct {
		Message string      `json:"message"`
		Type    string      `json:"type"`
		Code    interface{} `json:"code"`
	} `json:"error"`
}
