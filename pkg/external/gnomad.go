package external

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// GnomADClient serves as the AnnotationGnomAD source: gene-level
// constraint metrics (pLI, LOEUF, missense Z) from the gnomAD GraphQL
// API. gnomAD returns a row of all-null constraint fields for genes it
// has no constraint data for; that row is a valid cache entry, not a
// fetch failure, per spec.md's cache-validity invariant.
type GnomADClient struct {
	src *Source
}

// NewGnomADClient builds a gnomAD client from the declarative source config.
func NewGnomADClient(cfg domain.SourceConfig, limiter Limiter, log *logrus.Logger) *GnomADClient {
	return &GnomADClient{src: NewSource(string(domain.AnnotationGnomAD), cfg, limiter, log)}
}

const geneConstraintQuery = `
query GeneConstraint($geneSymbol: String!) {
	gene(gene_symbol: $geneSymbol, reference_genome: GRCh38) {
		gene_id
		symbol
		gnomad_constraint {
			pli
			oe_lof
			oe_lof_lower
			oe_lof_upper
			oe_mis
			mis_z
			syn_z
		}
	}
}`

type gnomadGeneResponse struct {
	Data struct {
		Gene *struct {
			GeneID string `json:"gene_id"`
			Symbol string `json:"symbol"`
			GnomadConstraint *struct {
				PLI        *float64 `json:"pli"`
				OELof      *float64 `json:"oe_lof"`
				OELofLower *float64 `json:"oe_lof_lower"`
				OELofUpper *float64 `json:"oe_lof_upper"`
				OEMis      *float64 `json:"oe_mis"`
				MisZ       *float64 `json:"mis_z"`
				SynZ       *float64 `json:"syn_z"`
			} `json:"gnomad_constraint"`
		} `json:"gene"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// FetchAnnotation implements annotate.Source for gnomAD: it fetches
// constraint metrics for the gene's approved symbol. A gene absent from
// gnomAD's constraint table still returns a valid all-null annotation.
func (g *GnomADClient) FetchAnnotation(ctx context.Context, gene *domain.Gene) (map[string]any, error) {
	reqBody := map[string]any{
		"query":     geneConstraintQuery,
		"variables": map[string]any{"geneSymbol": gene.ApprovedSymbol},
	}

	var resp gnomadGeneResponse
	if err := g.src.PostJSON(ctx, g.src.Config().BaseURL, reqBody, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, &domain.DataIntegrityError{Message: fmt.Sprintf("gnomAD API error for %s: %s", gene.ApprovedSymbol, resp.Errors[0].Message)}
	}

	out := map[string]any{
		"pli": nil, "oe_lof": nil, "oe_lof_lower": nil, "oe_lof_upper": nil,
		"oe_mis": nil, "mis_z": nil, "syn_z": nil,
	}
	if resp.Data.Gene != nil && resp.Data.Gene.GnomadConstraint != nil {
		c := resp.Data.Gene.GnomadConstraint
		out["pli"] = c.PLI
		out["oe_lof"] = c.OELof
		out["oe_lof_lower"] = c.OELofLower
		out["oe_lof_upper"] = c.OELofUpper
		out["oe_mis"] = c.OEMis
		out["mis_z"] = c.MisZ
		out["syn_z"] = c.SynZ
	}
	return out, nil
}

// IsValid reports whether a cached gnomAD annotation can be reused. An
// all-null constraint row is still a valid, cacheable "no constraint
// data" result: it must not be treated as a cache miss that forces a
// re-fetch on every run.
func (g *GnomADClient) IsValid(ann *domain.GeneAnnotation) bool {
	return ann != nil && ann.Annotations != nil
}
