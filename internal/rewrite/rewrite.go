// Package rewrite points local asset references in textual build outputs at
// their uploaded locations.
package rewrite

import (
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"cdnsync/internal/buildout"
)

// DefaultPatternCacheSize bounds the compiled reference patterns kept around.
const DefaultPatternCacheSize = 1024

// MismatchWarning reports an uploaded asset that no textual output
// references. It is informational only.
type MismatchWarning struct {
	ID string
}

func (w *MismatchWarning) Error() string {
	return fmt.Sprintf("no textual output references %s", w.ID)
}

type Rewriter struct {
	logger   *slog.Logger
	patterns *lru.Cache[string, *regexp.Regexp]
}

func New(logger *slog.Logger, cacheSize int) (*Rewriter, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultPatternCacheSize
	}
	patterns, err := lru.New[string, *regexp.Regexp](cacheSize)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rewriter{logger: logger, patterns: patterns}, nil
}

// Apply replaces references to id with location in every textual output
// and returns how many references changed. A *MismatchWarning is returned
// when nothing referenced id; callers should log it and carry on.
func (r *Rewriter) Apply(outputs []*buildout.Output, id, location string) (int, error) {
	id = buildout.NormalizeID(id)
	if id == "" || location == "" {
		return 0, fmt.Errorf("asset id and location are required")
	}
	total := 0
	for _, o := range outputs {
		if o == nil || !o.Kind.Textual() || o.ID == id {
			continue
		}
		re := r.pattern(path.Dir(o.ID), id)
		content, n := rewriteContent(o.Kind, o.Content, re, []byte(location))
		if n == 0 {
			continue
		}
		o.Content = content
		o.Modified = true
		total += n
		r.logger.Debug("rewrote references", "output", o.ID, "asset", id, "count", n)
	}
	if total == 0 {
		return 0, &MismatchWarning{ID: id}
	}
	return total, nil
}

// Content rewrites a single buffer of the given kind. Binary content is
// returned unchanged.
func (r *Rewriter) Content(kind buildout.Kind, content []byte, id, location string) ([]byte, int) {
	id = buildout.NormalizeID(id)
	if id == "" || location == "" {
		return content, 0
	}
	return rewriteContent(kind, content, r.pattern(".", id), []byte(location))
}

// pattern matches the spellings of id that are valid from an output in dir:
// the root-absolute /id, and the dir-relative form with or without ./.
func (r *Rewriter) pattern(dir, id string) *regexp.Regexp {
	key := dir + "\x00" + id
	if re, ok := r.patterns.Get(key); ok {
		return re
	}
	re := regexp.MustCompile(`/` + regexp.QuoteMeta(id) + `|(?:\./)?` + regexp.QuoteMeta(relativeRef(dir, id)))
	r.patterns.Add(key, re)
	return re
}

// relativeRef spells id relative to the slash directory dir.
func relativeRef(dir, id string) string {
	if dir == "" || dir == "." {
		return id
	}
	from := strings.Split(dir, "/")
	to := strings.Split(id, "/")
	i := 0
	for i < len(from) && i < len(to)-1 && from[i] == to[i] {
		i++
	}
	return strings.Repeat("../", len(from)-i) + strings.Join(to[i:], "/")
}

func rewriteContent(kind buildout.Kind, content []byte, re *regexp.Regexp, location []byte) ([]byte, int) {
	switch kind {
	case buildout.Script, buildout.Style:
		return replaceRefs(content, re, location)
	case buildout.Markup:
		return rewriteMarkup(content, re, location)
	default:
		return content, 0
	}
}

// replaceRefs substitutes every match of re that stands as a whole path,
// i.e. is not glued to further path characters on either side.
func replaceRefs(src []byte, re *regexp.Regexp, location []byte) ([]byte, int) {
	matches := re.FindAllIndex(src, -1)
	if len(matches) == 0 {
		return src, 0
	}
	var out []byte
	last, n := 0, 0
	for _, m := range matches {
		if m[0] > 0 && isPathByte(src[m[0]-1]) {
			continue
		}
		if m[1] < len(src) && isPathByte(src[m[1]]) {
			continue
		}
		if out == nil {
			out = make([]byte, 0, len(src)+len(location))
		}
		out = append(out, src[last:m[0]]...)
		out = append(out, location...)
		last = m[1]
		n++
	}
	if n == 0 {
		return src, 0
	}
	out = append(out, src[last:]...)
	return out, n
}

func isPathByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '.', c == '~', c == '/', c == '-':
		return true
	}
	return false
}
