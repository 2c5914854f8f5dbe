package knowledge

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Entry is one precedent or guidance note from the knowledge base.
type Entry struct {
	ID       string
	Title    string
	RiskTier string
	Category string
	Keywords []string
	Content  string
}

// Base is the parsed knowledge file. It is loaded once at startup and never
// mutated afterwards.
type Base struct {
	Entries []Entry
}

var entryHeaderRe = regexp.MustCompile(`^##\s+([A-Z]+-\d+)\s*[:\-]\s*(.+)$`)

// LoadBase reads and parses a markdown knowledge file from disk.
func LoadBase(path string) (*Base, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open knowledge file: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		sb.WriteString(scanner.Text())
		sb.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read knowledge file: %w", err)
	}
	return ParseBase(sb.String())
}

// ParseBase parses knowledge markdown. Entries start with a
// "## <ID>: <Title>" header followed by optional "Key: value" metadata lines
// and free-form guidance text.
func ParseBase(content string) (*Base, error) {
	base := &Base{}
	var cur *Entry
	var body []string

	flush := func() {
		if cur == nil {
			return
		}
		cur.Content = strings.TrimSpace(strings.Join(body, "\n"))
		if len(cur.Keywords) == 0 {
			cur.Keywords = deriveKeywords(cur.Title + " " + cur.Content)
		}
		base.Entries = append(base.Entries, *cur)
		cur = nil
		body = nil
	}

	for _, line := range strings.Split(content, "\n") {
		if m := entryHeaderRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			flush()
			cur = &Entry{ID: m[1], Title: strings.TrimSpace(m[2])}
			continue
		}
		if cur == nil {
			continue
		}
		if key, value, ok := metadataLine(line); ok && len(body) == 0 {
			switch key {
			case "risk":
				cur.RiskTier = strings.ToLower(value)
			case "category":
				cur.Category = strings.ToLower(value)
			case "keywords":
				cur.Keywords = splitKeywords(value)
			}
			continue
		}
		body = append(body, line)
	}
	flush()

	if len(base.Entries) == 0 {
		return nil, fmt.Errorf("knowledge base has no entries")
	}

	seen := map[string]bool{}
	for _, e := range base.Entries {
		if seen[e.ID] {
			return nil, fmt.Errorf("duplicate knowledge entry id %s", e.ID)
		}
		seen[e.ID] = true
	}
	return base, nil
}

func metadataLine(line string) (string, string, bool) {
	trimmed := strings.TrimSpace(line)
	key, value, ok := strings.Cut(trimmed, ":")
	if !ok {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(key))
	switch key {
	case "risk", "category", "keywords":
		return key, strings.TrimSpace(value), true
	}
	return "", "", false
}

func splitKeywords(value string) []string {
	var out []string
	for _, k := range strings.Split(value, ",") {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

var keywordStopWords = map[string]bool{
	"the": true, "and": true, "that": true, "this": true, "with": true,
	"for": true, "are": true, "not": true, "shall": true, "will": true,
	"any": true, "may": true, "party": true, "parties": true,
}

func deriveKeywords(text string) []string {
	counts := map[string]int{}
	var order []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,:;()\"'")
		if len(w) < 4 || keywordStopWords[w] {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	var out []string
	for _, w := range order {
		if counts[w] >= 2 {
			out = append(out, w)
		}
		if len(out) == 8 {
			break
		}
	}
	return out
}
