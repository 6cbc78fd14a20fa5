package external

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// ClinVarClient serves as the AnnotationClinVar source: per-gene counts
// of pathogenic/likely-pathogenic submissions via NCBI E-utilities
// esearch, queried by approved symbol.
type ClinVarClient struct {
	src *Source
}

// NewClinVarClient builds a ClinVar client from the declarative source config.
func NewClinVarClient(cfg domain.SourceConfig, limiter Limiter, log *logrus.Logger) *ClinVarClient {
	return &ClinVarClient{src: NewSource(string(domain.AnnotationClinVar), cfg, limiter, log)}
}

type eSearchResult struct {
	XMLName xml.Name `xml:"eSearchResult"`
	Count   int      `xml:"Count"`
}

var clinvarSignificanceTerms = []string{
	"pathogenic", "likely pathogenic",
}

// FetchAnnotation implements annotate.Source: it counts ClinVar
// submissions per clinical significance bucket for the gene's approved
// symbol.
func (c *ClinVarClient) FetchAnnotation(ctx context.Context, gene *domain.Gene) (map[string]any, error) {
	counts := map[string]any{}
	for _, term := range clinvarSignificanceTerms {
		n, err := c.esearchCount(ctx, gene.ApprovedSymbol, term)
		if err != nil {
			return nil, err
		}
		counts[significanceKey(term)] = n
	}
	return counts, nil
}

func significanceKey(term string) string {
	switch term {
	case "pathogenic":
		return "pathogenic_count"
	case "likely pathogenic":
		return "likely_pathogenic_count"
	default:
		return term
	}
}

func (c *ClinVarClient) esearchCount(ctx context.Context, symbol, significance string) (int, error) {
	query := fmt.Sprintf("%s[gene] AND %q[clinical_significance]", symbol, significance)
	params := url.Values{
		"db":      {"clinvar"},
		"term":    {query},
		"retmax":  {"0"},
		"usehistory": {"n"},
	}
	searchURL := fmt.Sprintf("%s/esearch.fcgi?%s", c.src.Config().BaseURL, params.Encode())
	if key := c.src.Config().APIKey; key != "" {
		searchURL += "&api_key=" + key
	}

	body, err := c.src.GetBytes(ctx, searchURL, map[string]string{"Accept": "application/xml"})
	if err != nil {
		return 0, err
	}

	var result eSearchResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return 0, &domain.DataIntegrityError{Message: fmt.Sprintf("clinvar esearch decode for %s: %v", symbol, err)}
	}
	return result.Count, nil
}

// IsValid reports whether a cached ClinVar annotation can be reused. A
// zero-count result for a gene with no pathogenic submissions is still
// a valid cache entry.
func (c *ClinVarClient) IsValid(ann *domain.GeneAnnotation) bool {
	return ann != nil && ann.Annotations != nil
}
