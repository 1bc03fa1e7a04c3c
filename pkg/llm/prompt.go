package llm

import "strings"

// Response-language directives. The Arabic directive is strict because
// mixed-language answers render poorly in right-to-left layouts.
const (
	arabicDirective  = "Respond in Arabic only. Every part of your answer must be written in Arabic."
	defaultDirective = "Respond in English."
)

// PersonalTouch carries optional free-text personalization folded into
// the system instruction. All fields may be empty.
type PersonalTouch struct {
	Nickname string `json:"nickname,omitempty"`
	Tone     string `json:"tone,omitempty"`
	Style    string `json:"style,omitempty"`
}

// SystemInstruction builds the system prompt from the response language
// and optional personalization. Plain concatenation; a field contributes
// a sentence only when present.
func SystemInstruction(language string, pt *PersonalTouch) string {
	parts := []string{"You are a helpful assistant."}

	if language == "ar" {
		parts = append(parts, arabicDirective)
	} else {
		parts = append(parts, defaultDirective)
	}

	if pt != nil {
		if pt.Nickname != "" {
			parts = append(parts, "Address the user as "+pt.Nickname+".")
		}
		if pt.Tone != "" {
			parts = append(parts, "Use a "+pt.Tone+" tone.")
		}
		if pt.Style != "" {
			parts = append(parts, "Match this writing style: "+pt.Style+".")
		}
	}

	return strings.Join(parts, " ")
}
