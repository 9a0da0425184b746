package htmlutil

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"repeatbot/lib/textutil"

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
	// keeps words from adjacent blocks apart, "<p>a</p><p>b</p>" is "a b"
	if node.Type == html.ElementNode && buffer.Len() > 0 {
		buffer.WriteByte(' ')
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		getTextRecursive(child, buffer)
	}
}

// OwnText only considers the direct text children of node.
func OwnText(node *html.Node) string {
	var buffer bytes.Buffer
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			buffer.WriteString(child.Data)
		}
	}
	return buffer.String()
}

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText is the visible text of a selection with non printable runes
// removed and whitespace collapsed.
func CleanText(sel *goquery.Selection) string {
	var buffer strings.Builder
	for i, n := range sel.Nodes {
		if i > 0 {
			buffer.WriteByte(' ')
		}
		buffer.WriteString(GetText(n))
	}
	return textutil.CollapseSpace(removeNonPrintable(buffer.String()))
}

// Fragment parses an element's outer HTML and returns a selection holding
// the element itself.
func Fragment(outerHTML string) (*goquery.Selection, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(outerHTML))
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	body := doc.Find("body")
	children := body.Children()
	if children.Length() == 0 {
		return body, nil
	}
	return children.First(), nil
}

// ResolveHref returns the href of the first node in sel resolved against
// base. ok is false when there is no href or it does not parse.
func ResolveHref(sel *goquery.Selection, base *url.URL) (string, bool) {
	href, exists := sel.Attr("href")
	if !exists {
		href, exists = sel.Find("a[href]").First().Attr("href")
	}
	href = strings.TrimSpace(href)
	if !exists || href == "" {
		return "", false
	}
	link, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base != nil {
		link = base.ResolveReference(link)
	}
	return link.String(), true
}
