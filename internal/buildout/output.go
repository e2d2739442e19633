// Package buildout models the files emitted by a static build and moves them
// between the build directory and the sync pipeline.
package buildout

import (
	"path"
	"strings"
)

// Kind says whether an output may be pattern-rewritten.
type Kind int

const (
	Binary Kind = iota
	Script
	Style
	Markup
)

func (k Kind) String() string {
	switch k {
	case Script:
		return "script"
	case Style:
		return "style"
	case Markup:
		return "markup"
	default:
		return "binary"
	}
}

// Textual reports whether outputs of this kind are scanned by the rewriter.
func (k Kind) Textual() bool {
	return k != Binary
}

// Tier orders processing so an output is uploaded only after the outputs it
// may reference: binaries first, then scripts and styles, then markup.
func (k Kind) Tier() int {
	switch k {
	case Binary:
		return 0
	case Script, Style:
		return 1
	default:
		return 2
	}
}

// NumTiers is the number of distinct Tier values.
const NumTiers = 3

var extKinds = map[string]Kind{
	".js":          Script,
	".mjs":         Script,
	".cjs":         Script,
	".json":        Script,
	".webmanifest": Script,
	".css":         Style,
	".html":        Markup,
	".htm":         Markup,
}

// Classify derives the kind from the file extension.
func Classify(id string) Kind {
	if k, ok := extKinds[strings.ToLower(path.Ext(id))]; ok {
		return k
	}
	return Binary
}

// Output is one emitted build file. The pipeline borrows it and only mutates
// Content for textual kinds.
type Output struct {
	ID       string
	Content  []byte
	Kind     Kind
	Modified bool
}

// New returns an output classified by its identifier.
func New(id string, content []byte) *Output {
	id = NormalizeID(id)
	return &Output{ID: id, Content: content, Kind: Classify(id)}
}

// NormalizeID turns a path into the slash-separated, root-relative form
// used as the cache key.
func NormalizeID(id string) string {
	id = strings.ReplaceAll(strings.TrimSpace(id), "\\", "/")
	id = path.Clean("/" + id)
	return strings.TrimPrefix(id, "/")
}

// ByTier splits outputs into NumTiers groups, keeping build order inside
// each group.
func ByTier(outputs []*Output) [NumTiers][]*Output {
	var tiers [NumTiers][]*Output
	for _, o := range outputs {
		if o == nil {
			continue
		}
		t := o.Kind.Tier()
		tiers[t] = append(tiers[t], o)
	}
	return tiers
}
