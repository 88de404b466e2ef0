package chat

import (
	"bytes"

	"github.com/yuin/goldmark"
)

// RenderHTML converts a Markdown reply to HTML for the web client.
// Raw HTML in the reply is not passed through.
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
