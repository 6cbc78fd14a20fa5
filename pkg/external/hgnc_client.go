package external

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// HGNCClient resolves gene symbols and aliases against the HUGO Gene
// Nomenclature Committee REST search API, and serves as the
// AnnotationHGNC source for canonical identifier enrichment.
type HGNCClient struct {
	src *Source
}

// NewHGNCClient builds an HGNC client from the declarative source config.
func NewHGNCClient(cfg domain.SourceConfig, limiter Limiter, log *logrus.Logger) *HGNCClient {
	return &HGNCClient{src: NewSource(string(domain.AnnotationHGNC), cfg, limiter, log)}
}

type hgncSearchResponse struct {
	Response struct {
		NumFound int `json:"numFound"`
		Docs     []hgncDoc `json:"docs"`
	} `json:"response"`
}

type hgncDoc struct {
	Symbol          string   `json:"symbol"`
	Name            string   `json:"name"`
	Status          string   `json:"status"`
	HGNCID          string   `json:"hgnc_id"`
	EnsemblGeneID   string   `json:"ensembl_gene_id"`
	EntrezID        string   `json:"entrez_id"`
	Location        string   `json:"location"`
	PreviousSymbols []string `json:"prev_symbol"`
	AliasSymbols    []string `json:"alias_symbol"`
}

// Search looks up a raw gene token (symbol, alias, or previous symbol)
// and returns ranked CandidateMatch results for the normalizer's tie-
// break logic. An exact symbol match scores 1.0; a previous-symbol or
// alias match scores lower since it requires a rename disposition.
func (h *HGNCClient) Search(ctx context.Context, token string) ([]domain.CandidateMatch, error) {
	token = strings.TrimSpace(strings.ToUpper(token))
	if token == "" {
		return nil, &domain.ValidationError{Field: "token", Message: "gene token cannot be empty"}
	}

	params := url.Values{
		"q":      {fmt.Sprintf("symbol:%s OR prev_symbol:%s OR alias_symbol:%s", token, token, token)},
		"rows":   {"10"},
		"format": {"json"},
	}
	searchURL := fmt.Sprintf("%s/search?%s", h.src.Config().BaseURL, params.Encode())

	var resp hgncSearchResponse
	if err := h.src.GetJSON(ctx, searchURL, map[string]string{"Accept": "application/json"}, &resp); err != nil {
		return nil, err
	}

	matches := make([]domain.CandidateMatch, 0, len(resp.Response.Docs))
	for _, doc := range resp.Response.Docs {
		sym := strings.ToUpper(doc.Symbol)
		switch {
		case sym == token:
			matches = append(matches, domain.CandidateMatch{ApprovedSymbol: doc.Symbol, HGNCID: doc.HGNCID, Confidence: 1.0, MatchType: "exact", Locus: doc.Location})
		case containsUpper(doc.PreviousSymbols, token):
			matches = append(matches, domain.CandidateMatch{ApprovedSymbol: doc.Symbol, HGNCID: doc.HGNCID, Confidence: 0.85, MatchType: "previous_symbol", Locus: doc.Location})
		case containsUpper(doc.AliasSymbols, token):
			matches = append(matches, domain.CandidateMatch{ApprovedSymbol: doc.Symbol, HGNCID: doc.HGNCID, Confidence: 0.7, MatchType: "alias", Locus: doc.Location})
		default:
			matches = append(matches, domain.CandidateMatch{ApprovedSymbol: doc.Symbol, HGNCID: doc.HGNCID, Confidence: 0.4, MatchType: "fuzzy", Locus: doc.Location})
		}
	}
	return matches, nil
}

func containsUpper(ss []string, target string) bool {
	for _, s := range ss {
		if strings.ToUpper(s) == target {
			return true
		}
	}
	return false
}

// FetchAnnotation implements annotate.Source: it refreshes the
// canonical HGNC record for a single gene (Ensembl/Entrez cross
// references, current status) as a GeneAnnotation payload.
func (h *HGNCClient) FetchAnnotation(ctx context.Context, gene *domain.Gene) (map[string]any, error) {
	matches, err := h.lookupExact(ctx, gene.HGNCID)
	if err != nil {
		return nil, err
	}
	if matches == nil {
		return nil, &domain.DataIntegrityError{Message: fmt.Sprintf("hgnc_id %s no longer resolves", gene.HGNCID)}
	}
	return map[string]any{
		"symbol":          matches.Symbol,
		"status":          matches.Status,
		"ensembl_gene_id": matches.EnsemblGeneID,
		"entrez_id":       matches.EntrezID,
		"aliases":         append(matches.PreviousSymbols, matches.AliasSymbols...),
	}, nil
}

func (h *HGNCClient) lookupExact(ctx context.Context, hgncID string) (*hgncDoc, error) {
	params := url.Values{
		"q":      {fmt.Sprintf("hgnc_id:%s", hgncID)},
		"rows":   {"1"},
		"format": {"json"},
	}
	searchURL := fmt.Sprintf("%s/search?%s", h.src.Config().BaseURL, params.Encode())

	var resp hgncSearchResponse
	if err := h.src.GetJSON(ctx, searchURL, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Response.Docs) == 0 {
		return nil, nil
	}
	return &resp.Response.Docs[0], nil
}

// IsValid reports whether an HGNC annotation payload is usable: any
// non-empty payload is valid, since HGNC annotations never carry
// all-null placeholder rows. It does not check freshness.
func (h *HGNCClient) IsValid(ann *domain.GeneAnnotation) bool {
	return ann != nil && len(ann.Annotations) > 0
}

// UpdateGene implements annotate.GeneUpdater: it populates EnsemblGeneID
// and NCBIGeneID on the Gene row from the HGNC annotation payload, since
// GTEx and Descartes require an Ensembl ID and otherwise have none until
// HGNC has run.
func (h *HGNCClient) UpdateGene(gene *domain.Gene, annotations map[string]any) {
	if ensemblID, ok := annotations["ensembl_gene_id"].(string); ok && ensemblID != "" {
		gene.EnsemblGeneID = ensemblID
	}
	if entrezID, ok := annotations["entrez_id"].(string); ok && entrezID != "" {
		gene.NCBIGeneID = entrezID
	}
}
