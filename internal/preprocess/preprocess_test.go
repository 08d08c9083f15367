package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thebtf/semcache/pkg/models"
)

func structuredPrompt() models.Prompt {
	return models.Prompt{Messages: []models.Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "what is 2+2"},
	}}
}

func TestProcessPlainTextBypassesMode(t *testing.T) {
	p := models.Prompt{Text: "hello"}
	assert.Equal(t, "hello", Process(p, ModeMultiSplicing))
}

func TestProcessLastContent(t *testing.T) {
	assert.Equal(t, "what is 2+2", Process(structuredPrompt(), ModeLastContent))
}

func TestProcessRoleLastContent(t *testing.T) {
	assert.Equal(t, "user: what is 2+2", Process(structuredPrompt(), ModeRoleLastContent))
}

func TestProcessMultiSplicing(t *testing.T) {
	want := "system###be terse|||user###what is 2+2"
	assert.Equal(t, want, Process(structuredPrompt(), ModeMultiSplicing))
}

func TestProcessEmptyMessagesReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", Process(models.Prompt{Messages: []models.Message{}}, ModeLastContent))
}

func TestPostProcessTrimsWhitespace(t *testing.T) {
	a := models.Answer{Type: models.AnswerTypeString, Text: "  hi there  "}
	assert.Equal(t, "hi there", PostProcess(a))
}

func TestPostProcessObjectReturnsHandle(t *testing.T) {
	a := models.Answer{Type: models.AnswerTypeObject, Handle: "bucket/key"}
	assert.Equal(t, "bucket/key", PostProcess(a))
}
