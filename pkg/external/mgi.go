package external

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// MGIClient serves as the AnnotationMGI source: mouse ortholog
// phenotype calls from the Mouse Genome Informatics database, used to
// corroborate a human gene's kidney phenotype with model-organism
// evidence.
type MGIClient struct {
	src *Source
}

// NewMGIClient builds an MGI client from the declarative source config.
func NewMGIClient(cfg domain.SourceConfig, limiter Limiter, log *logrus.Logger) *MGIClient {
	return &MGIClient{src: NewSource(string(domain.AnnotationMGI), cfg, limiter, log)}
}

type mgiPhenotypeResponse struct {
	Ortholog struct {
		MGIID  string `json:"mgi_id"`
		Symbol string `json:"symbol"`
	} `json:"ortholog"`
	Phenotypes []struct {
		MPID string `json:"mp_id"`
		Name string `json:"name"`
	} `json:"phenotypes"`
}

// FetchAnnotation implements annotate.Source: it returns the mouse
// ortholog identity and its Mammalian Phenotype Ontology terms.
func (m *MGIClient) FetchAnnotation(ctx context.Context, gene *domain.Gene) (map[string]any, error) {
	reqURL := fmt.Sprintf("%s/marker/human/%s/phenotypes", m.src.Config().BaseURL, url.PathEscape(gene.ApprovedSymbol))

	var resp mgiPhenotypeResponse
	if err := m.src.GetJSON(ctx, reqURL, nil, &resp); err != nil {
		var perm *domain.PermanentStatusError
		if asPermanentNotFound(err, &perm) {
			return map[string]any{"mgi_id": nil, "ortholog_symbol": nil, "phenotypes": []map[string]string{}}, nil
		}
		return nil, err
	}

	phenotypes := make([]map[string]string, 0, len(resp.Phenotypes))
	for _, p := range resp.Phenotypes {
		phenotypes = append(phenotypes, map[string]string{"mp_id": p.MPID, "name": p.Name})
	}
	return map[string]any{
		"mgi_id":          resp.Ortholog.MGIID,
		"ortholog_symbol": resp.Ortholog.Symbol,
		"phenotypes":      phenotypes,
	}, nil
}

// IsValid reports whether a cached MGI annotation can be reused. A gene
// with no mouse ortholog on record is still a valid cache entry.
func (m *MGIClient) IsValid(ann *domain.GeneAnnotation) bool {
	return ann != nil && ann.Annotations != nil
}
