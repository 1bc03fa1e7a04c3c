package relay

import "github.com/brookhq/brook/pkg/llm"

// ImagePayload is one base64-encoded image attached to a request.
type ImagePayload struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mimeType"`
}

// VisionRequest is the body of POST /api/vision-stream.
type VisionRequest struct {
	Images        []ImagePayload     `json:"images"`
	Prompt        string             `json:"prompt"`
	Language      string             `json:"language"`
	PersonalTouch *llm.PersonalTouch `json:"personalTouch"`
}

// BrainRequest is the body of POST /api/brain-stream.
type BrainRequest struct {
	Message        string             `json:"message"`
	Language       string             `json:"language"`
	ConversationID string             `json:"conversationId"`
	ActiveTrigger  string             `json:"activeTrigger"`
	AttachedFiles  []ImagePayload     `json:"attachedFiles"`
	Stream         bool               `json:"stream"`
	PersonalTouch  *llm.PersonalTouch `json:"personalTouch"`
}
