package normalize

import (
	"regexp"
	"strings"
)

// Clause is a heading-delimited span of the document. Documents without
// recognizable headings are chunked by size instead.
type Clause struct {
	Index   int    `json:"index"`
	Heading string `json:"heading,omitempty"`
	Text    string `json:"text"`
}

const (
	maxClauseChars = 1600
	minClauseChars = 40
)

var headingRe = regexp.MustCompile(`^\s*((?:\d+(?:\.\d+)*[.)]?|ARTICLE\s+[IVXLC\d]+[.:]?|Section\s+\d+(?:\.\d+)*[.:]?)\s+[A-Z][^\n]{0,80}|[A-Z][A-Z ,&\-]{3,60})\s*$`)

// SplitClauses breaks cleaned document text into clauses on numbered or
// all-caps headings. Oversized clauses are chunked at paragraph boundaries so
// downstream retrieval queries stay bounded.
func SplitClauses(text string) []Clause {
	lines := strings.Split(text, "\n")

	var raw []Clause
	var heading string
	var buf []string

	flush := func() {
		body := strings.TrimSpace(strings.Join(buf, "\n"))
		if heading == "" && body == "" {
			return
		}
		raw = append(raw, Clause{Heading: heading, Text: body})
		buf = buf[:0]
	}

	for _, line := range lines {
		if m := headingRe.FindStringSubmatch(line); m != nil {
			flush()
			heading = strings.TrimSpace(m[1])
			continue
		}
		buf = append(buf, line)
	}
	flush()

	var out []Clause
	for _, c := range raw {
		if len(c.Text) <= maxClauseChars {
			if c.Heading != "" || len(c.Text) >= minClauseChars {
				out = append(out, c)
			}
			continue
		}
		for i, chunk := range chunkParagraphs(c.Text, maxClauseChars) {
			h := c.Heading
			if h != "" && i > 0 {
				h = h + " (cont.)"
			}
			out = append(out, Clause{Heading: h, Text: chunk})
		}
	}

	if len(out) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		for _, chunk := range chunkParagraphs(trimmed, maxClauseChars) {
			out = append(out, Clause{Text: chunk})
		}
	}

	for i := range out {
		out[i].Index = i
	}
	return out
}

func chunkParagraphs(text string, limit int) []string {
	paras := strings.Split(text, "\n\n")
	var chunks []string
	var cur strings.Builder

	emit := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}

	for _, p := range paras {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(p)+2 > limit {
			emit()
		}
		for len(p) > limit {
			cut := strings.LastIndex(p[:limit], " ")
			if cut < limit/2 {
				cut = limit
			}
			emit()
			chunks = append(chunks, strings.TrimSpace(p[:cut]))
			p = strings.TrimSpace(p[cut:])
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	emit()
	return chunks
}
