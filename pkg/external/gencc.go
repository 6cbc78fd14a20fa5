package external

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// GenCCClient downloads the full GenCC gene-disease validity export.
// GenCC publishes one flat export rather than a paged API, so this
// client performs a single bulk fetch; the two-stage kidney predicate
// filter runs afterward in internal/sources/gencc.
type GenCCClient struct {
	src *Source
}

// NewGenCCClient builds a GenCC client from the declarative source config.
func NewGenCCClient(cfg domain.SourceConfig, limiter Limiter, log *logrus.Logger) *GenCCClient {
	return &GenCCClient{src: NewSource(string(domain.SourceGenCC), cfg, limiter, log)}
}

// DownloadExport fetches the raw GenCC submissions export (TSV/XLSX, as
// published) for the caller to parse row by row.
func (g *GenCCClient) DownloadExport(ctx context.Context) ([]byte, error) {
	return g.src.GetBytes(ctx, g.src.Config().BaseURL, map[string]string{"Accept": "*/*"})
}
