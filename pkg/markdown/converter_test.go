package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToTelegramHTMLBasicFormatting(t *testing.T) {
	out := ToTelegramHTML("**bold** and *italic* and `code`")

	assert.Contains(t, out, "<b>bold</b>")
	assert.Contains(t, out, "<i>italic</i>")
	assert.Contains(t, out, "<code>code</code>")
	assert.NotContains(t, out, "<p>")
}

func TestToTelegramHTMLCodeBlock(t *testing.T) {
	out := ToTelegramHTML("```go\nfmt.Println(\"hi\")\n```")

	assert.Contains(t, out, "<pre>")
	assert.NotContains(t, out, "<code class")
}

func TestToTelegramHTMLStripsUnsupportedTags(t *testing.T) {
	out := ToTelegramHTML("# Heading\n\n| a | b |\n|---|---|\n| 1 | 2 |")

	for _, tag := range []string{"<h1>", "<table>", "<tr>", "<td>", "<thead>"} {
		assert.NotContains(t, out, tag)
	}
	assert.Contains(t, out, "Heading")
}

func TestToTelegramHTMLLists(t *testing.T) {
	out := ToTelegramHTML("- first\n- second")

	assert.NotContains(t, out, "<li>")
	assert.Equal(t, 2, strings.Count(out, "• "))
}

func TestToTelegramHTMLEmpty(t *testing.T) {
	assert.Equal(t, "", ToTelegramHTML(""))
}
