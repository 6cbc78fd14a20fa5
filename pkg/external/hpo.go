package external

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/annotate"
	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// HPOClient serves as the AnnotationHPO source: the full set of Human
// Phenotype Ontology terms associated with a gene. The classifier that
// consumes this annotation scores over the complete term set, never a
// kidney-filtered subset, so FetchAnnotation must not apply any
// domain-specific filtering itself.
type HPOClient struct {
	src *Source
}

// NewHPOClient builds an HPO client from the declarative source config.
func NewHPOClient(cfg domain.SourceConfig, limiter Limiter, log *logrus.Logger) *HPOClient {
	return &HPOClient{src: NewSource(string(domain.AnnotationHPO), cfg, limiter, log)}
}

type hpoGeneResponse struct {
	Terms []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"terms"`
}

// FetchAnnotation implements annotate.Source: it returns every HPO term
// linked to the gene, unfiltered.
func (h *HPOClient) FetchAnnotation(ctx context.Context, gene *domain.Gene) (map[string]any, error) {
	reqURL := fmt.Sprintf("%s/genes/%s/hpo", h.src.Config().BaseURL, url.PathEscape(gene.ApprovedSymbol))

	var resp hpoGeneResponse
	if err := h.src.GetJSON(ctx, reqURL, nil, &resp); err != nil {
		var perm *domain.PermanentStatusError
		if asPermanentNotFound(err, &perm) {
			return map[string]any{"terms": []map[string]string{}}, nil
		}
		return nil, err
	}

	terms := make([]map[string]string, 0, len(resp.Terms))
	phenotypes := make([]annotate.PhenotypeTerm, 0, len(resp.Terms))
	for _, t := range resp.Terms {
		terms = append(terms, map[string]string{"id": t.ID, "name": t.Name})
		phenotypes = append(phenotypes, annotate.PhenotypeTerm{ID: t.ID, Name: t.Name})
	}
	classification := annotate.ClassifyHPO(phenotypes)
	return map[string]any{
		"terms":            terms,
		"clinical_group":   classification.ClinicalGroup,
		"confidence":       classification.Confidence,
		"onset_group":      classification.OnsetGroup,
		"is_syndromic":     classification.IsSyndromic,
		"category_scores":  classification.CategoryScores,
	}, nil
}

// IsValid reports whether a cached HPO annotation can be reused. A gene
// with zero linked terms is still a valid, cacheable result.
func (h *HPOClient) IsValid(ann *domain.GeneAnnotation) bool {
	return ann != nil && ann.Annotations != nil
}

func asPermanentNotFound(err error, target **domain.PermanentStatusError) bool {
	pe, ok := err.(*domain.PermanentStatusError)
	if !ok || pe.StatusCode != 404 {
		return false
	}
	*target = pe
	return true
}
