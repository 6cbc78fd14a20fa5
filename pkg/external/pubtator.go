package external

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// PubTatorClient queries the PubTator3 API for gene mentions that
// co-occur with kidney-disease terms in biomedical literature. Results
// are paged; callers drive pagination with successive SearchPage calls
// rather than this client buffering the full result set, so the
// orchestrator can checkpoint between pages.
type PubTatorClient struct {
	src *Source
}

// NewPubTatorClient builds a PubTator client from the declarative source config.
func NewPubTatorClient(cfg domain.SourceConfig, limiter Limiter, log *logrus.Logger) *PubTatorClient {
	return &PubTatorClient{src: NewSource(string(domain.SourcePubTator), cfg, limiter, log)}
}

// PubTatorHit is one gene mention returned by a search page.
type PubTatorHit struct {
	PMID       string
	GeneSymbol string
	Text       string
}

type pubtatorSearchResponse struct {
	Results []struct {
		PMID        string `json:"pmid"`
		Annotations []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"annotations"`
	} `json:"results"`
	Count int `json:"count"`
}

// SearchPage fetches one page of PubTator search results for the given
// query, returning the raw hits and whether more pages remain.
func (p *PubTatorClient) SearchPage(ctx context.Context, query string, page int) ([]PubTatorHit, bool, error) {
	params := url.Values{
		"text": {query},
		"page": {fmt.Sprintf("%d", page)},
	}
	reqURL := fmt.Sprintf("%s/publications/export/pubtator?%s", p.src.Config().BaseURL, params.Encode())

	var resp pubtatorSearchResponse
	if err := p.src.GetJSON(ctx, reqURL, nil, &resp); err != nil {
		return nil, false, err
	}

	hits := make([]PubTatorHit, 0, len(resp.Results))
	for _, r := range resp.Results {
		for _, ann := range r.Annotations {
			if ann.Type != "Gene" {
				continue
			}
			hits = append(hits, PubTatorHit{PMID: r.PMID, GeneSymbol: ann.Text, Text: ann.Text})
		}
	}
	hasMore := len(resp.Results) > 0
	return hits, hasMore, nil
}
