package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText collapses the formatting noise markup carries into text
// suitable for a structured field.
func CleanText(s string) string {
	s = removeNonPrintable(s)
	s = strings.Trim(s, " \t\n")
	s = innerWhitespace.ReplaceAllString(s, " ")
	return s
}

// FirstMatch tries each selector in order and returns the cleaned text
// of the first one yielding non-empty content. Pages serve different
// markup depending on session state, so callers list every known
// variant in priority order.
func FirstMatch(doc *goquery.Document, selectors []string) string {
	for _, selector := range selectors {
		sel := doc.Find(selector)
		if len(sel.Nodes) == 0 {
			continue
		}
		text := CleanText(GetText(sel.Nodes[0]))
		if text != "" {
			return text
		}
	}
	return ""
}
