package annotate

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-shiori/dom"
	"golang.org/x/net/html"
)

func parseBody(t *testing.T, src string) (*html.Node, *html.Node) {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc, dom.QuerySelector(doc, "body")
}

func TestLocate(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		phrase  string
		offsets []int
	}{
		{"inside a longer word", "<p>A dog and a catalog</p>", "cat", []int{12}},
		{"several in one node", "<p>the cat sat on the cat mat</p>", "cat", []int{4, 19}},
		{"case sensitive", "<p>Cat cat CAT</p>", "cat", []int{4}},
		{"non-overlapping", "<p>aaaa</p>", "aa", []int{0, 2}},
		{"script and style rejected", "<script>var cat</script><style>.cat{}</style><p>cat</p>", "cat", []int{0}},
		{"ruby readings rejected", "<p><ruby>猫<rt>ねこ</rt></ruby>ねこ</p>", "ねこ", []int{0}},
		{"annotated spans rejected", `<p><span class="annotated-phrase">cat</span> cat</p>`, "cat", []int{1}},
		{"engine ui rejected", `<div data-annotator-ui="tooltip">cat</div><p>cat</p>`, "cat", []int{0}},
		{"no match across elements", "<p>New <b>York</b></p>", "New York", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, body := parseBody(t, "<html><body>"+tt.html+"</body></html>")
			occs, err := Locate(body, tt.phrase)
			if err != nil {
				t.Fatalf("Locate: %v", err)
			}
			if len(occs) != len(tt.offsets) {
				t.Fatalf("got %d occurrences, want %d", len(occs), len(tt.offsets))
			}
			for i, o := range occs {
				if o.Offset != tt.offsets[i] {
					t.Errorf("occurrence %d at %d, want %d", i, o.Offset, tt.offsets[i])
				}
				if got := o.Node.Data[o.Offset : o.Offset+len(tt.phrase)]; got != tt.phrase {
					t.Errorf("occurrence %d covers %q", i, got)
				}
			}
		})
	}
}

func TestLocateDocumentOrder(t *testing.T) {
	_, body := parseBody(t, "<html><body><p>one cat</p><div><p>two cat</p></div><p>three cat</p></body></html>")
	occs, err := Locate(body, "cat")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	want := []string{"one cat", "two cat", "three cat"}
	if len(occs) != len(want) {
		t.Fatalf("got %d occurrences", len(occs))
	}
	for i, o := range occs {
		if o.Node.Data != want[i] {
			t.Errorf("occurrence %d in %q, want %q", i, o.Node.Data, want[i])
		}
	}
}

func TestLocateRejectsBlankPhrase(t *testing.T) {
	_, body := parseBody(t, "<html><body><p>text</p></body></html>")
	for _, phrase := range []string{"", "   ", "\n\t"} {
		if _, err := Locate(body, phrase); !errors.Is(err, ErrInvalidPhrase) {
			t.Errorf("Locate(%q) error = %v, want ErrInvalidPhrase", phrase, err)
		}
	}
}
