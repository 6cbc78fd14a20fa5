package external

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// STRINGClient serves as the AnnotationSTRING source: the gene's
// highest-confidence protein-protein interaction partners from the
// STRING database, used to surface network proximity to known kidney
// genes.
type STRINGClient struct {
	src *Source
}

// NewSTRINGClient builds a STRING client from the declarative source config.
func NewSTRINGClient(cfg domain.SourceConfig, limiter Limiter, log *logrus.Logger) *STRINGClient {
	return &STRINGClient{src: NewSource(string(domain.AnnotationSTRING), cfg, limiter, log)}
}

type stringInteraction struct {
	PreferredNameA string  `json:"preferredName_A"`
	PreferredNameB string  `json:"preferredName_B"`
	Score          float64 `json:"score"`
}

// FetchAnnotation implements annotate.Source: it returns the gene's
// top interaction partners above STRING's medium-confidence cutoff.
func (s *STRINGClient) FetchAnnotation(ctx context.Context, gene *domain.Gene) (map[string]any, error) {
	params := url.Values{
		"identifiers":    {gene.ApprovedSymbol},
		"species":        {"9606"}, // Homo sapiens
		"required_score": {"400"},  // medium confidence
		"limit":          {"25"},
	}
	reqURL := fmt.Sprintf("%s/json/interaction_partners?%s", s.src.Config().BaseURL, params.Encode())

	var interactions []stringInteraction
	if err := s.src.GetJSON(ctx, reqURL, nil, &interactions); err != nil {
		var perm *domain.PermanentStatusError
		if asPermanentNotFound(err, &perm) {
			return map[string]any{"partners": []map[string]any{}}, nil
		}
		return nil, err
	}

	partners := make([]map[string]any, 0, len(interactions))
	for _, in := range interactions {
		partner := in.PreferredNameB
		if partner == gene.ApprovedSymbol {
			partner = in.PreferredNameA
		}
		partners = append(partners, map[string]any{"symbol": partner, "score": in.Score})
	}
	return map[string]any{"partners": partners}, nil
}

// IsValid reports whether a cached STRING annotation can be reused. A
// gene with no qualifying interaction partners is still a valid cache
// entry.
func (s *STRINGClient) IsValid(ann *domain.GeneAnnotation) bool {
	return ann != nil && ann.Annotations != nil
}
