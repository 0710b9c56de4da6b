package markup

import "strings"

// token is either a literal text run or a parsed tag.
type token struct {
	isTag bool
	text  string // literal text, when !isTag
	name  string // tag name, lowercased, when isTag
	raw   string // the argument string inside "name: <raw>", trimmed
}

// tokenizeLine splits a single markup line into literal-text and tag tokens,
// in document order. Tags are "[name]" or "[name: args]"; a '[' with no
// matching ']' on the line is treated as literal text.
func tokenizeLine(line string) []token {
	var toks []token
	var lit strings.Builder

	flushLit := func() {
		if lit.Len() > 0 {
			toks = append(toks, token{text: lit.String()})
			lit.Reset()
		}
	}

	i := 0
	for i < len(line) {
		if line[i] != '[' {
			lit.WriteByte(line[i])
			i++
			continue
		}
		end := strings.IndexByte(line[i:], ']')
		if end < 0 {
			lit.WriteByte(line[i])
			i++
			continue
		}
		body := line[i+1 : i+end]
		flushLit()
		name, raw, _ := strings.Cut(body, ":")
		toks = append(toks, token{isTag: true, name: strings.ToLower(strings.TrimSpace(name)), raw: strings.TrimSpace(raw)})
		i += end + 1
	}
	flushLit()
	return toks
}

// splitArgs splits a tag's argument string on ';', trimming each segment.
// Empty segments are dropped.
func splitArgs(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitKV splits one arg segment into a lowercased key and a value. Segments
// with no space are bare flags/values: key equals the whole segment, value
// is empty.
func splitKV(seg string) (key, value string) {
	key, value, found := strings.Cut(seg, " ")
	if !found {
		return strings.ToLower(strings.TrimSpace(seg)), ""
	}
	return strings.ToLower(strings.TrimSpace(key)), strings.TrimSpace(value)
}

// argMap turns a tag's argument string into a key->value lookup, for tags
// whose args are all "key value" pairs (magnify, column, image, barcode,
// buzzer, spacing, logo).
func argMap(raw string) map[string]string {
	m := make(map[string]string)
	for _, seg := range splitArgs(raw) {
		k, v := splitKV(seg)
		m[k] = v
	}
	return m
}
