package resolver

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

var allowedTags = map[string]bool{"p": true, "br": true, "b": true, "ul": true, "li": true}

// CheckHTML accepts text whose only markup is attribute-free p, br, b, ul
// and li tags.
func CheckHTML(s string) error {
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return nil
			}
			return z.Err()
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if !allowedTags[string(name)] {
				return fmt.Errorf("tag <%s> is not allowed", name)
			}
			if hasAttr {
				return fmt.Errorf("tag <%s> must not carry attributes", name)
			}
		case html.CommentToken, html.DoctypeToken:
			return errors.New("comments and doctypes are not allowed")
		}
	}
}
