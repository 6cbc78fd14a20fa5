package external

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// GTExClient serves as the AnnotationGTEx source: median tissue
// expression (TPM) from the Genotype-Tissue Expression project,
// surfaced per tissue so kidney-cortex and kidney-medulla expression
// can be compared against the gene's other tissues. Requires the
// gene's Ensembl ID, so it depends on AnnotationHGNC having run first.
type GTExClient struct {
	src *Source
}

// NewGTExClient builds a GTEx client from the declarative source config.
func NewGTExClient(cfg domain.SourceConfig, limiter Limiter, log *logrus.Logger) *GTExClient {
	return &GTExClient{src: NewSource(string(domain.AnnotationGTEx), cfg, limiter, log)}
}

type gtexExpressionResponse struct {
	Data []struct {
		TissueSiteDetailID string  `json:"tissueSiteDetailId"`
		Median             float64 `json:"median"`
	} `json:"data"`
}

// FetchAnnotation implements annotate.Source: it returns median TPM
// per tissue for the gene's Ensembl ID.
func (g *GTExClient) FetchAnnotation(ctx context.Context, gene *domain.Gene) (map[string]any, error) {
	if gene.EnsemblGeneID == "" {
		return nil, &domain.DependencyUnmetError{Source: string(domain.AnnotationGTEx), Dependency: string(domain.AnnotationHGNC)}
	}

	params := url.Values{
		"gencodeId":  {gene.EnsemblGeneID},
		"datasetId":  {"gtex_v8"},
	}
	reqURL := fmt.Sprintf("%s/expression/medianGeneExpression?%s", g.src.Config().BaseURL, params.Encode())

	var resp gtexExpressionResponse
	if err := g.src.GetJSON(ctx, reqURL, nil, &resp); err != nil {
		return nil, err
	}

	tissues := make(map[string]float64, len(resp.Data))
	for _, row := range resp.Data {
		tissues[row.TissueSiteDetailID] = row.Median
	}
	return map[string]any{"tissue_tpm": tissues}, nil
}

// IsValid reports whether a cached GTEx annotation can be reused. A
// gene with no expression rows (e.g. not in GTEx's reference set) is
// still a valid cache entry, not a fetch failure.
func (g *GTExClient) IsValid(ann *domain.GeneAnnotation) bool {
	return ann != nil && ann.Annotations != nil
}
