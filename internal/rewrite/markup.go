package rewrite

import (
	"bytes"
	"regexp"

	"golang.org/x/net/html"
)

// rewriteMarkup walks the document token by token, reproducing the raw bytes
// exactly. Only attribute values of opening tags and the raw bodies of
// <script> and <style> elements are rewritten.
func rewriteMarkup(src []byte, re *regexp.Regexp, location []byte) ([]byte, int) {
	if !re.Match(src) {
		return src, 0
	}
	z := html.NewTokenizer(bytes.NewReader(src))
	var out bytes.Buffer
	out.Grow(len(src))
	consumed, n := 0, 0
	rawText := false

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		// TagName lowercases the tokenizer buffer in place, so copy first.
		raw := append([]byte(nil), z.Raw()...)
		consumed += len(raw)

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			rewritten, k := rewriteAttrs(raw, re, location)
			out.Write(rewritten)
			n += k
			name, _ := z.TagName()
			rawText = tt == html.StartTagToken && (string(name) == "script" || string(name) == "style")
		case html.TextToken:
			if rawText {
				rewritten, k := replaceRefs(raw, re, location)
				out.Write(rewritten)
				n += k
			} else {
				out.Write(raw)
			}
		default:
			rawText = false
			out.Write(raw)
		}
	}
	if consumed < len(src) {
		out.Write(src[consumed:])
	}
	if n == 0 {
		return src, 0
	}
	return out.Bytes(), n
}

// rewriteAttrs rewrites references inside the attribute values of one raw
// opening tag such as `<img src="/a.png" alt=logo>`.
func rewriteAttrs(tag []byte, re *regexp.Regexp, location []byte) ([]byte, int) {
	spans := attrValueSpans(tag)
	if len(spans) == 0 {
		return tag, 0
	}
	var out []byte
	last, n := 0, 0
	for _, sp := range spans {
		value := tag[sp[0]:sp[1]]
		rewritten, k := replaceRefs(value, re, location)
		if k == 0 {
			continue
		}
		out = append(out, tag[last:sp[0]]...)
		out = append(out, rewritten...)
		last = sp[1]
		n += k
	}
	if n == 0 {
		return tag, 0
	}
	out = append(out, tag[last:]...)
	return out, n
}

// attrValueSpans returns the [start, end) offsets of each attribute value,
// excluding quotes.
func attrValueSpans(tag []byte) [][2]int {
	var spans [][2]int
	i := 1
	for i < len(tag) && !isSpace(tag[i]) && tag[i] != '>' && tag[i] != '/' {
		i++
	}
	for i < len(tag) {
		for i < len(tag) && (isSpace(tag[i]) || tag[i] == '/') {
			i++
		}
		if i >= len(tag) || tag[i] == '>' {
			break
		}
		for i < len(tag) && !isSpace(tag[i]) && tag[i] != '=' && tag[i] != '>' && tag[i] != '/' {
			i++
		}
		j := i
		for j < len(tag) && isSpace(tag[j]) {
			j++
		}
		if j >= len(tag) || tag[j] != '=' {
			i = j
			continue
		}
		j++
		for j < len(tag) && isSpace(tag[j]) {
			j++
		}
		if j >= len(tag) {
			break
		}
		if q := tag[j]; q == '"' || q == '\'' {
			start := j + 1
			end := bytes.IndexByte(tag[start:], q)
			if end < 0 {
				break
			}
			spans = append(spans, [2]int{start, start + end})
			i = start + end + 1
			continue
		}
		start := j
		for j < len(tag) && !isSpace(tag[j]) && tag[j] != '>' {
			j++
		}
		spans = append(spans, [2]int{start, j})
		i = j
	}
	return spans
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
