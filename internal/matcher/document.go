package matcher

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// ignoreDirective matches `// kiro-ignore: a, b`, `/* kiro-ignore: a */`
// and `# kiro-ignore: a`.
var ignoreDirective = regexp.MustCompile(
	`(?://|/\*|#)[ \t]*kiro-ignore:[ \t]*([A-Za-z0-9_.:-]+(?:[ \t]*,[ \t]*[A-Za-z0-9_.:-]+)*)`)

// Document is a file's text with a precomputed line index. It is read-only
// after construction and safe to share between goroutines.
type Document struct {
	Filename string
	Text     string

	lineStarts []int
	ignores    map[int][]string
}

// NewDocument indexes text.
func NewDocument(filename, text string) *Document {
	d := &Document{
		Filename:   filename,
		Text:       text,
		lineStarts: []int{0},
	}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			d.lineStarts = append(d.lineStarts, i+1)
		}
	}

	if strings.Contains(text, "kiro-ignore") {
		d.ignores = make(map[int][]string)
		for _, m := range ignoreDirective.FindAllStringSubmatchIndex(text, -1) {
			line := d.lineOf(m[0])
			for _, name := range strings.Split(text[m[2]:m[3]], ",") {
				d.ignores[line] = append(d.ignores[line], strings.TrimSpace(name))
			}
		}
	}
	return d
}

// LineCount is the number of lines; a trailing newline does not start a
// new counted line.
func (d *Document) LineCount() int {
	n := len(d.lineStarts)
	if n > 1 && d.lineStarts[n-1] == len(d.Text) {
		n--
	}
	return n
}

// lineOf returns the 1-based line containing byte offset.
func (d *Document) lineOf(offset int) int {
	return sort.Search(len(d.lineStarts), func(i int) bool {
		return d.lineStarts[i] > offset
	})
}

// Position converts a byte offset to a 1-based line and a 1-based column
// counted in runes.
func (d *Document) Position(offset int) (line, column int) {
	line = d.lineOf(offset)
	start := d.lineStarts[line-1]
	return line, utf8.RuneCountInString(d.Text[start:offset]) + 1
}

// Line returns the text of 1-based line n without its newline.
func (d *Document) Line(n int) string {
	if n < 1 || n > len(d.lineStarts) {
		return ""
	}
	start := d.lineStarts[n-1]
	end := len(d.Text)
	if n < len(d.lineStarts) {
		end = d.lineStarts[n] - 1
	}
	return d.Text[start:end]
}

// Ignored reports whether line carries a kiro-ignore directive naming rule.
func (d *Document) Ignored(line int, rule string) bool {
	for _, name := range d.ignores[line] {
		if name == rule {
			return true
		}
	}
	return false
}
