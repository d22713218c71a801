// Package extract turns a fetched page into a document tree, the text sent to
// the language model and the element annotations are applied under.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/cascadia"
	"github.com/go-shiori/dom"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// ErrNoReadableContent is returned when neither readability nor the page body
// yields enough text to annotate.
var ErrNoReadableContent = errors.New("no readable content found on page")

const (
	minArticleChars = 50
	minBodyChars    = 100
)

// Article is the readable part of a page.
type Article struct {
	Title       string
	Byline      string
	SiteName    string
	TextContent string
	// Fallback is set when the text came from the page body instead of readability.
	Fallback bool
	// Root is the element annotations are applied under: the content
	// container when readability found the article, otherwise the body.
	Root *html.Node
}

var (
	// (?s) allows dot to match newlines
	// (?i) makes it case-insensitive
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
)

// SanitizeRuby removes ruby readings (<rt>) and ruby parentheses (<rp>) from
// raw HTML so extracted text does not repeat furigana ("漢字かんじ").
// It operates on bytes and is safe for Shift_JIS, where '<' never appears as a
// trailing byte.
func SanitizeRuby(content []byte) []byte {
	cleaned := reRT.ReplaceAll(content, nil)
	return reRP.ReplaceAll(cleaned, nil)
}

// Parse parses an HTML page into a document tree.
func Parse(r io.Reader) (*html.Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Extract finds the readable text of doc and the element to annotate. The
// document itself is not modified. Root is set even when an error is returned.
func Extract(doc *html.Node, pageURL string) (Article, error) {
	art := Article{Root: bodyOf(doc)}
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return art, fmt.Errorf("render document: %w", err)
	}
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return art, fmt.Errorf("parse page url %q: %w", pageURL, err)
	}

	if ra, err := readability.FromReader(bytes.NewReader(SanitizeRuby(buf.Bytes())), parsedURL); err == nil {
		art.Title, art.Byline, art.SiteName = ra.Title, ra.Byline, ra.SiteName
		if text := strings.TrimSpace(ra.TextContent); utf8.RuneCountInString(text) > minArticleChars {
			art.TextContent = text
			art.Root = ContentRoot(doc)
			return art, nil
		}
	}

	if art.Title == "" {
		art.Title = pageTitle(doc)
	}
	if body := dom.QuerySelector(doc, "body"); body != nil {
		if text := BodyText(body); utf8.RuneCountInString(text) > minBodyChars {
			art.TextContent = text
			art.Fallback = true
			return art, nil
		}
	}
	return art, ErrNoReadableContent
}

var skipText = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"rt":       true,
	"rp":       true,
}

// BodyText returns the visible text under n with runs of whitespace collapsed.
func BodyText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				sb.WriteString(c.Data)
				sb.WriteByte(' ')
			case html.ElementNode:
				if !skipText[c.Data] {
					walk(c)
				}
			}
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

var contentSelector = cascadia.MustCompile(`article, [role="main"], .post-content, .entry-content, #main-content, #content`)

// ContentRoot returns the element that holds the page's main content: the
// first element in document order matching a known content container, else
// the body, else doc itself.
func ContentRoot(doc *html.Node) *html.Node {
	if n := contentSelector.MatchFirst(doc); n != nil {
		return n
	}
	return bodyOf(doc)
}

func bodyOf(doc *html.Node) *html.Node {
	if body := dom.QuerySelector(doc, "body"); body != nil {
		return body
	}
	return doc
}

func pageTitle(doc *html.Node) string {
	if t := dom.QuerySelector(doc, "title"); t != nil {
		return strings.TrimSpace(dom.TextContent(t))
	}
	return ""
}

// Text returns what should be sent to the language model and where to
// annotate. A non-blank selection is used as is, with the body as root and
// the page title kept; otherwise the page is run through Extract.
func Text(doc *html.Node, pageURL, selection string) (Article, error) {
	if s := strings.TrimSpace(selection); s != "" {
		return Article{Title: pageTitle(doc), TextContent: s, Root: bodyOf(doc)}, nil
	}
	return Extract(doc, pageURL)
}
