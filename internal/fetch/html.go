package fetch

import (
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	multiNewline = regexp.MustCompile(`\n{3,}`)
	multiSpace   = regexp.MustCompile(`[ \t]{2,}`)
)

// HTMLText parses an HTML document and returns its visible text, one block
// element per paragraph.
func HTMLText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	walkText(doc, &sb)

	out := multiSpace.ReplaceAllString(sb.String(), " ")
	lines := strings.Split(out, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	out = multiNewline.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out), nil
}

func walkText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template", "iframe", "svg":
			return
		case "img":
			if alt := attr(n, "alt"); alt != "" {
				sb.WriteString(alt)
				sb.WriteString(" ")
			}
			return
		case "br":
			sb.WriteString("\n")
			return
		}
	}

	block := n.Type == html.ElementNode && isBlock(n.Data)
	if block {
		sb.WriteString("\n\n")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, sb)
	}
	if block {
		sb.WriteString("\n\n")
	}
}

func isBlock(tag string) bool {
	switch tag {
	case "title", "p", "div", "section", "article", "header", "footer", "nav", "main",
		"h1", "h2", "h3", "h4", "h5", "h6", "li", "ul", "ol", "table", "tr", "blockquote", "pre":
		return true
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
