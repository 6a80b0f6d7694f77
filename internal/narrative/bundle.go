package narrative

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/mitigate/internal/job"
)

// GenerateBundle runs the requested text kinds concurrently, one attempt
// each. A failed kind is logged and replaced by its placeholder, so the
// result always has an entry for every requested kind. With no kinds given
// it generates ReportKinds.
func (d *Dispatcher) GenerateBundle(ctx context.Context, rec job.Record, kinds ...Kind) map[Kind]string {
	if len(kinds) == 0 {
		kinds = ReportKinds
	}

	results := make([]string, len(kinds))
	var g errgroup.Group
	g.SetLimit(len(ReportKinds))

	for i, kind := range kinds {
		g.Go(func() error {
			text, err := d.Generate(ctx, kind, rec)
			if err != nil {
				d.logger.Warn("narrative generation failed", "kind", kind, "error", err)
				text = kind.Placeholder()
			}
			results[i] = text
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[Kind]string, len(kinds))
	for i, kind := range kinds {
		out[kind] = results[i]
	}
	return out
}
