package attachment

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// DefaultParallelism bounds concurrent shared-attachment fetches.
const DefaultParallelism = 4

// ObjectStore turns a locator into attachment bytes.
type ObjectStore interface {
	ResolveAttachment(ctx context.Context, locator string) (domain.ResolvedAttachment, error)
}

// Resolver dispatches attachment refs to the store registered for their
// source kind and caches the results.
type Resolver struct {
	stores   map[domain.SourceKind]ObjectStore
	cache    *Cache
	parallel int
}

// NewResolver creates a resolver with its own cache.
func NewResolver(stores map[domain.SourceKind]ObjectStore, parallel int) *Resolver {
	if parallel <= 0 {
		parallel = DefaultParallelism
	}
	if stores == nil {
		stores = make(map[domain.SourceKind]ObjectStore)
	}
	return &Resolver{
		stores:   stores,
		cache:    NewCache(),
		parallel: parallel,
	}
}

// Cache returns the resolver's cache.
func (r *Resolver) Cache() *Cache { return r.cache }

// ResolveAll resolves every shared ref, in order, with bounded concurrency.
// Any failure aborts the rest and is wrapped in ErrResolution.
func (r *Resolver) ResolveAll(ctx context.Context, refs []domain.AttachmentRef) ([]domain.ResolvedAttachment, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	out := make([]domain.ResolvedAttachment, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)

	for i, ref := range refs {
		g.Go(func() error {
			res, err := r.resolve(gctx, ref)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrResolution, ref.Name, err)
			}
			out[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Printf("[Attachment] Resolved %d shared attachment(s), %d fetch(es)", len(refs), r.cache.Fetches())
	return out, nil
}

// ResolvePersonalized fetches a recipient-specific attachment from its URL.
func (r *Resolver) ResolvePersonalized(ctx context.Context, override *domain.AttachmentOverride) (domain.ResolvedAttachment, error) {
	if override == nil || override.URL == "" {
		return domain.ResolvedAttachment{}, fmt.Errorf("empty attachment override")
	}
	return r.resolve(ctx, domain.AttachmentRef{
		Name:    override.FileName,
		Source:  domain.SourceRemoteURL,
		Locator: override.URL,
	})
}

func (r *Resolver) resolve(ctx context.Context, ref domain.AttachmentRef) (domain.ResolvedAttachment, error) {
	store, ok := r.stores[ref.Source]
	if !ok {
		return domain.ResolvedAttachment{}, fmt.Errorf("%w: %q", ErrUnsupportedSource, ref.Source)
	}

	res, err := r.cache.GetOrFetch(cacheKey(ref.Source, ref.Locator), func() (domain.ResolvedAttachment, error) {
		return store.ResolveAttachment(ctx, ref.Locator)
	})
	if err != nil {
		return domain.ResolvedAttachment{}, err
	}

	// The ref's own name and type win over whatever the source inferred
	if ref.Name != "" {
		res.Name = ref.Name
	}
	if res.Name == "" {
		res.Name = nameFromLocator(ref.Locator)
	}
	if ref.MIMEType != "" {
		res.MIMEType = ref.MIMEType
	}
	return res, nil
}

func nameFromLocator(locator string) string {
	if i := strings.IndexAny(locator, "?#"); i >= 0 {
		locator = locator[:i]
	}
	base := path.Base(locator)
	if base == "." || base == "/" || base == "" {
		return "attachment"
	}
	return base
}
