package datasource

import (
	"context"
	"fmt"
	"io"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/viewtree/pkg/metrics"
)

// AllRootID is the ID of the synthetic root LoadAll builds.
const AllRootID = "sources"

// maxParallelLoads bounds open files during LoadAll.
const maxParallelLoads = 16

// Load reads one source.
func Load(ctx context.Context, src Source) (Item, error) {
	defer metrics.Timer(metrics.TreeLoad)()

	switch src.Type {
	case SourceTypeJSON:
		return LoadJSON(src.Path)
	case SourceTypeSQLite:
		return LoadSQLite(ctx, src.Path)
	default:
		return Item{}, fmt.Errorf("%w: %s", ErrUnknownType, src.Type)
	}
}

// Result is the outcome of loading one source.
type Result struct {
	Source Source
	Root   Item
	Error  error
}

// Loader loads several sources under one synthetic root.
type Loader struct {
	logger *log.Logger
}

// NewLoader returns a loader that is silent until SetLogger is called.
func NewLoader() *Loader {
	return &Loader{logger: log.New(io.Discard, "", 0)}
}

// SetLogger sets the logger failed sources are reported to.
func (l *Loader) SetLogger(logger *log.Logger) {
	l.logger = logger
}

// LoadAll loads sources in parallel. A source that fails to load is
// reported in its Result and left out of the tree; the others still load.
// The returned root has one child per loaded source, in source order, and
// each child is keyed by its source path so identical IDs in different
// files do not collide.
func (l *Loader) LoadAll(ctx context.Context, sources []Source) (Item, []Result, error) {
	if len(sources) == 0 {
		return Item{}, nil, ErrEmpty
	}
	results := make([]Result, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLoads)
	for i, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Source: src, Error: err}
				return nil
			}
			root, err := Load(ctx, src)
			results[i] = Result{Source: src, Root: root, Error: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Item{}, results, fmt.Errorf("fatal error during parallel loading: %w", err)
	}

	root := Item{ID: AllRootID}
	for _, r := range results {
		if r.Error != nil {
			l.logger.Printf("warning: failed to load %s: %v", r.Source.Path, r.Error)
			continue
		}
		child := r.Root
		if len(sources) > 1 {
			child = Item{ID: r.Source.Path, Label: r.Source.Name(), Children: []Item{r.Root}}
		}
		root.Children = append(root.Children, child)
	}
	if len(sources) == 1 && len(root.Children) == 1 {
		root = root.Children[0]
	}
	root.Seal()
	return root, results, nil
}

// FirstError returns the first failed result's error.
func FirstError(results []Result) error {
	for _, r := range results {
		if r.Error != nil {
			return fmt.Errorf("%s: %w", r.Source.Path, r.Error)
		}
	}
	return nil
}
