// Package markdown renders model output into the HTML subset Telegram
// accepts. Models reply in markdown; sending it raw breaks on underscores
// and asterisks inside identifiers, so replies are converted instead.
package markdown

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

var (
	paragraphRe = regexp.MustCompile(`(?s)<p>(.*?)</p>`)
	preCodeRe   = regexp.MustCompile(`(?s)<pre><code(?: class="[^"]*")?>(.*?)</code></pre>`)
	tagRe       = regexp.MustCompile(`</?([a-zA-Z]+)(?:\s[^>]*)?>`)
	tagNameRe   = regexp.MustCompile(`</?([a-zA-Z]+)`)
	newlinesRe  = regexp.MustCompile(`\n{3,}`)
)

// Telegram allows only this tag set in HTML parse mode.
var supportedTags = map[string]bool{
	"b": true, "i": true, "u": true, "s": true,
	"code": true, "pre": true, "a": true, "br": true,
}

// ToTelegramHTML converts markdown to Telegram-compatible HTML.
func ToTelegramHTML(md string) string {
	if md == "" {
		return ""
	}

	html := string(blackfriday.Run([]byte(md), blackfriday.WithExtensions(blackfriday.CommonExtensions)))

	html = paragraphRe.ReplaceAllString(html, "$1\n")
	html = preCodeRe.ReplaceAllString(html, "<pre>$1</pre>")

	replacer := strings.NewReplacer(
		"<strong>", "<b>", "</strong>", "</b>",
		"<em>", "<i>", "</em>", "</i>",
		"<ul>", "", "</ul>", "",
		"<ol>", "", "</ol>", "",
		"<li>", "• ", "</li>", "\n",
	)
	html = replacer.Replace(html)

	// Strip everything Telegram rejects.
	html = tagRe.ReplaceAllStringFunc(html, func(match string) string {
		name := tagNameRe.FindStringSubmatch(match)
		if len(name) > 1 && supportedTags[strings.ToLower(name[1])] {
			return match
		}
		return ""
	})

	html = newlinesRe.ReplaceAllString(html, "\n\n")
	return strings.TrimSpace(html)
}
