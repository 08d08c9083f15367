// Package preprocess implements the query pre-processor (C8): turning a
// structured or plain prompt into the single string that gets embedded and
// compared against the similarity threshold, plus the post-processor that
// shapes the cached answer on a hit.
package preprocess

import (
	"strings"

	"github.com/thebtf/semcache/pkg/models"
)

// Mode selects one of the three pre-processor strategies for structured
// (multi-message) prompts. A plain-string prompt always bypasses these and
// is used as-is.
type Mode string

const (
	// ModeLastContent embeds only the final message's content.
	ModeLastContent Mode = "last_content"
	// ModeRoleLastContent embeds "role: content" for the final message.
	ModeRoleLastContent Mode = "role_last_content"
	// ModeMultiSplicing concatenates every message as "role###content",
	// joined by "|||", preserving the full conversation's context.
	ModeMultiSplicing Mode = "multi_splicing"
)

// Process reduces prompt to the string the embedding dispatcher should
// embed, per mode. A plain-text prompt is returned unchanged regardless of
// mode.
func Process(prompt models.Prompt, mode Mode) string {
	if !prompt.IsStructured() {
		return prompt.Text
	}
	if len(prompt.Messages) == 0 {
		return ""
	}

	switch mode {
	case ModeLastContent:
		return prompt.Messages[len(prompt.Messages)-1].Content
	case ModeMultiSplicing:
		var b strings.Builder
		for i, m := range prompt.Messages {
			if i > 0 {
				b.WriteString("|||")
			}
			b.WriteString(m.Role)
			b.WriteString("###")
			b.WriteString(m.Content)
		}
		return b.String()
	case ModeRoleLastContent:
		fallthrough
	default:
		last := prompt.Messages[len(prompt.Messages)-1]
		return last.Role + ": " + last.Content
	}
}

// CanonicalPrompt renders prompt the same way Process would for storage in
// the scalar store, so a later lookup by hit_query reproduces exactly what
// was embedded.
func CanonicalPrompt(prompt models.Prompt, mode Mode) string {
	return Process(prompt, mode)
}

// PostProcess shapes the stored Answer for the response envelope. For an
// object answer it returns the stored handle unchanged (the caller resolves
// object answers through the object store when one is configured); for a
// text answer it trims surrounding whitespace the way the pre-processor's
// embedding input never saw.
func PostProcess(answer models.Answer) string {
	if answer.Type == models.AnswerTypeObject {
		return answer.Handle
	}
	return strings.TrimSpace(answer.Text)
}
