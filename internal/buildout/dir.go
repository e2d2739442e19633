package buildout

import (
	"fmt"
	"strings"

	"cdnsync/internal/safeio"
)

// Dir is a build directory on disk.
type Dir struct {
	fs      *safeio.SafeFS
	exclude map[string]bool
}

// OpenDir binds a build directory. Excluded names are relative files or
// directories that are never treated as outputs, such as a cache file kept
// inside the build.
func OpenDir(root string, exclude ...string) (*Dir, error) {
	fsys, err := safeio.NewSafeFS(root)
	if err != nil {
		return nil, fmt.Errorf("open build dir: %w", err)
	}
	ex := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		if e = NormalizeID(e); e != "" {
			ex[e] = true
		}
	}
	return &Dir{fs: fsys, exclude: ex}, nil
}

func (d *Dir) Root() string {
	return d.fs.Root()
}

// Load reads every file under the directory in sorted path order.
func (d *Dir) Load() ([]*Output, error) {
	files, err := d.fs.Files()
	if err != nil {
		return nil, fmt.Errorf("list build outputs: %w", err)
	}
	out := make([]*Output, 0, len(files))
	for _, rel := range files {
		if d.skip(rel) {
			continue
		}
		raw, err := d.fs.ReadFile(rel)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rel, err)
		}
		out = append(out, New(rel, raw))
	}
	return out, nil
}

// WriteBack persists the content of every modified textual output and
// returns the ids it wrote.
func (d *Dir) WriteBack(outputs []*Output) ([]string, error) {
	var written []string
	for _, o := range outputs {
		if o == nil || !o.Modified || !o.Kind.Textual() {
			continue
		}
		if err := d.fs.WriteFile(o.ID, o.Content); err != nil {
			return written, fmt.Errorf("write %s: %w", o.ID, err)
		}
		o.Modified = false
		written = append(written, o.ID)
	}
	return written, nil
}

func (d *Dir) skip(rel string) bool {
	if d.exclude[rel] {
		return true
	}
	for ex := range d.exclude {
		if strings.HasPrefix(rel, ex+"/") {
			return true
		}
		if strings.HasPrefix(rel, ex+".") && (strings.HasSuffix(rel, ".lock") || strings.HasSuffix(rel, ".tmp")) {
			return true
		}
	}
	return false
}
