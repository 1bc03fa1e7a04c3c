// Package llm defines provider-agnostic chat types shared by the relay
// and the upstream provider clients.
package llm

// Message represents a single message in a conversation.
// Content is stored as an array of ContentBlocks to support multimodal
// content (text and images) in a provider-agnostic way.
type Message struct {
	Role    string         `json:"role"`    // "system", "user", "assistant"
	Content []ContentBlock `json:"content"` // Array of content blocks
}

// ContentBlock represents a single piece of content within a message.
// The Type field determines which other fields are populated.
type ContentBlock struct {
	Type string `json:"type"` // "text", "image"

	// Text content (type="text")
	Text string `json:"text,omitempty"`

	// Image content (type="image")
	ImageBase64 string `json:"image_base64,omitempty"` // Base64-encoded image data
	MediaType   string `json:"media_type,omitempty"`   // MIME type (e.g., "image/png")
}

// NewTextMessage creates a simple text message with the given role and content.
func NewTextMessage(role, text string) Message {
	return Message{
		Role: role,
		Content: []ContentBlock{
			{Type: "text", Text: text},
		},
	}
}

// NewImageBlock creates an image content block with a normalized MIME type.
func NewImageBlock(base64Data, mediaType string) ContentBlock {
	return ContentBlock{
		Type:        "image",
		ImageBase64: base64Data,
		MediaType:   NormalizeMediaType(mediaType),
	}
}

// GetText returns the concatenated text content from all text blocks in the message.
// This is a convenience method for simple text-only messages.
func (m *Message) GetText() string {
	var result string
	for _, block := range m.Content {
		if block.Type == "text" {
			result += block.Text
		}
	}
	return result
}

// NormalizeMediaType canonicalizes MIME aliases that providers reject.
// Notably "image/jpg" is widely produced by browsers but is not a
// registered type; providers expect "image/jpeg".
func NormalizeMediaType(mediaType string) string {
	if mediaType == "image/jpg" {
		return "image/jpeg"
	}
	return mediaType
}
