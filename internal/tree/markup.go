package tree

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainName strips markup from a stored node name and returns the text the
// user sees and types. Names without a tag are returned untouched.
func PlainName(raw string) string {
	if !strings.Contains(raw, "<") {
		return raw
	}
	tokenizer := html.NewTokenizer(strings.NewReader(raw))
	var builder strings.Builder
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return builder.String()
		case html.TextToken:
			builder.Write(tokenizer.Text())
		}
	}
}
