package external

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// DescartesClient serves as the AnnotationDescartes source: single-cell
// fetal expression fractions from the Descartes Human Cell Atlas,
// reported per cell type so fetal kidney cell types can be compared
// against the gene's other fetal expression. Requires the gene's
// Ensembl ID, so it depends on AnnotationHGNC having run first.
type DescartesClient struct {
	src *Source
}

// NewDescartesClient builds a Descartes client from the declarative source config.
func NewDescartesClient(cfg domain.SourceConfig, limiter Limiter, log *logrus.Logger) *DescartesClient {
	return &DescartesClient{src: NewSource(string(domain.AnnotationDescartes), cfg, limiter, log)}
}

type descartesCellTypeResponse struct {
	CellTypes []struct {
		Name           string  `json:"name"`
		FractionExpressing float64 `json:"fraction_expressing"`
		MeanCPM        float64 `json:"mean_cpm"`
	} `json:"cell_types"`
}

// FetchAnnotation implements annotate.Source: it returns per-cell-type
// fetal expression fractions for the gene's Ensembl ID.
func (d *DescartesClient) FetchAnnotation(ctx context.Context, gene *domain.Gene) (map[string]any, error) {
	if gene.EnsemblGeneID == "" {
		return nil, &domain.DependencyUnmetError{Source: string(domain.AnnotationDescartes), Dependency: string(domain.AnnotationHGNC)}
	}

	reqURL := fmt.Sprintf("%s/gene/%s/cell_types", d.src.Config().BaseURL, url.PathEscape(gene.EnsemblGeneID))

	var resp descartesCellTypeResponse
	if err := d.src.GetJSON(ctx, reqURL, nil, &resp); err != nil {
		var perm *domain.PermanentStatusError
		if asPermanentNotFound(err, &perm) {
			return map[string]any{"cell_types": []map[string]any{}}, nil
		}
		return nil, err
	}

	cellTypes := make([]map[string]any, 0, len(resp.CellTypes))
	for _, ct := range resp.CellTypes {
		cellTypes = append(cellTypes, map[string]any{
			"name": ct.Name, "fraction_expressing": ct.FractionExpressing, "mean_cpm": ct.MeanCPM,
		})
	}
	return map[string]any{"cell_types": cellTypes}, nil
}

// IsValid reports whether a cached Descartes annotation can be reused.
// A gene with no detected fetal cell-type expression is still a valid
// cache entry.
func (d *DescartesClient) IsValid(ann *domain.GeneAnnotation) bool {
	return ann != nil && ann.Annotations != nil
}
