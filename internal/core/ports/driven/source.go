package driven

import (
	"context"

	"github.com/marginal-labs/marginalia-cli/internal/core/domain"
)

// HighlightSource fetches the raw highlight export from the upstream
// service. Pagination, authentication and rate limiting are handled by
// the implementation; the core only sees an ordered sequence of source
// entries.
type HighlightSource interface {
	// FetchAll walks the paginated export and returns every source
	// entry in export order. A non-nil error alongside a non-empty
	// slice means pagination stopped early and the slice holds the
	// partial result accumulated so far.
	FetchAll(ctx context.Context) ([]domain.SourceExport, error)

	// CheckConnection verifies the credentials work by fetching a
	// single page and discarding it.
	CheckConnection(ctx context.Context) error
}
