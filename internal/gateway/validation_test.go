package gateway

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateText(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validateText("hello"))
	assert.NoError(t, validateText(strings.Repeat("a", maxTextLength)))

	assert.Error(t, validateText(""))
	assert.Error(t, validateText(strings.Repeat("a", maxTextLength+1)))
	assert.Error(t, validateText("broken \xff\xfe bytes"))
}

func TestValidateChatID(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validateChatID("chat-1"))

	assert.Error(t, validateChatID(""))
	assert.Error(t, validateChatID(strings.Repeat("x", 65)))
}
