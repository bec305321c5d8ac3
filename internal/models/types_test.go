package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentPartWireShape(t *testing.T) {
	msg := Message{
		Role: RoleUser,
		Content: []ContentPart{
			NewTextPart("what is this?"),
			NewImagePart([]byte{0xFF, 0xD8}, "image/jpeg"),
			NewFilePart("doc.pdf", []byte("%PDF"), "application/pdf"),
		},
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	parts := decoded["content"].([]interface{})
	require.Len(t, parts, 3)

	text := parts[0].(map[string]interface{})
	assert.Equal(t, "text", text["type"])
	assert.Equal(t, "what is this?", text["text"])
	assert.NotContains(t, text, "image_url")

	image := parts[1].(map[string]interface{})
	assert.Equal(t, "image_url", image["type"])
	url := image["image_url"].(map[string]interface{})["url"].(string)
	assert.Equal(t, "data:image/jpeg;base64,/9g=", url)

	file := parts[2].(map[string]interface{})
	assert.Equal(t, "file", file["type"])
	payload := file["file"].(map[string]interface{})
	assert.Equal(t, "doc.pdf", payload["filename"])
	assert.Equal(t, "data:application/pdf;base64,JVBERg==", payload["file_data"])
}

func TestTextMessage(t *testing.T) {
	msg := TextMessage(RoleAssistant, "hello")

	assert.Equal(t, RoleAssistant, msg.Role)
	require.Len(t, msg.Content, 1)
	assert.Equal(t, "hello", msg.Content[0].Text)
}
