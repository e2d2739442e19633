package pipeline

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"cdnsync/internal/cache"
	"cdnsync/internal/upload"
)

type Uploaded struct {
	ID       string
	Location string
	Attempts int
}

type Failure struct {
	ID  string
	Err error
}

// Summary is the user-visible outcome of a run.
type Summary struct {
	CacheStatus cache.LoadStatus
	Skipped     []string
	Uploaded    []Uploaded
	Failed      []Failure
	Swept       []string
	Rewrites    int
	Metrics     upload.MetricsSnapshot
	Duration    time.Duration
}

// OK reports whether every asset was either skipped or uploaded.
func (s *Summary) OK() bool {
	return s != nil && len(s.Failed) == 0
}

// Write prints a table of every asset followed by totals.
func (s *Summary) Write(w io.Writer) error {
	if s == nil {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tASSET\tDETAIL")
	for _, id := range s.Skipped {
		fmt.Fprintf(tw, "unchanged\t%s\t\n", id)
	}
	for _, u := range s.Uploaded {
		fmt.Fprintf(tw, "uploaded\t%s\t%s\n", u.ID, u.Location)
	}
	for _, f := range s.Failed {
		fmt.Fprintf(tw, "failed\t%s\t%v\n", f.ID, f.Err)
	}
	for _, id := range s.Swept {
		fmt.Fprintf(tw, "expired\t%s\t\n", id)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d unchanged, %d uploaded, %d failed, %d expired, %d references rewritten in %s\n",
		len(s.Skipped), len(s.Uploaded), len(s.Failed), len(s.Swept), s.Rewrites, s.Duration.Round(time.Millisecond))
	return err
}
