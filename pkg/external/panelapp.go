package external

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// PanelAppClient fetches curated diagnostic gene panels from Genomics
// England PanelApp. Panels are paged; callers page through ListPanels
// and GetPanelGenes independently so the two-stage kidney predicate
// filter (panel name/disease candidate match, then disease-group
// allowlist) can run per page.
type PanelAppClient struct {
	src *Source
}

// NewPanelAppClient builds a PanelApp client from the declarative source config.
func NewPanelAppClient(cfg domain.SourceConfig, limiter Limiter, log *logrus.Logger) *PanelAppClient {
	return &PanelAppClient{src: NewSource(string(domain.SourcePanelApp), cfg, limiter, log)}
}

type panelAppPanelListResponse struct {
	Next    *string `json:"next"`
	Results []struct {
		ID          int    `json:"id"`
		Name        string `json:"name"`
		DiseaseGroup string `json:"disease_group"`
		DiseaseSub  string `json:"disease_sub_group"`
	} `json:"results"`
}

// PanelAppPanel is one candidate panel surfaced by ListPanels.
type PanelAppPanel struct {
	ID           int
	Name         string
	DiseaseGroup string
	DiseaseSub   string
}

// ListPanels fetches one page of the panel catalog.
func (p *PanelAppClient) ListPanels(ctx context.Context, page int) ([]PanelAppPanel, bool, error) {
	params := url.Values{"page": {fmt.Sprintf("%d", page)}}
	reqURL := fmt.Sprintf("%s/panels/?%s", p.src.Config().BaseURL, params.Encode())

	var resp panelAppPanelListResponse
	if err := p.src.GetJSON(ctx, reqURL, nil, &resp); err != nil {
		return nil, false, err
	}

	panels := make([]PanelAppPanel, 0, len(resp.Results))
	for _, r := range resp.Results {
		panels = append(panels, PanelAppPanel{ID: r.ID, Name: r.Name, DiseaseGroup: r.DiseaseGroup, DiseaseSub: r.DiseaseSub})
	}
	return panels, resp.Next != nil, nil
}

type panelAppGenesResponse struct {
	Next    *string `json:"next"`
	Results []struct {
		EntityName        string `json:"entity_name"`
		ConfidenceLevel    string `json:"confidence_level"`
		GeneData           struct {
			HGNCID string `json:"hgnc_id"`
			HGNCSymbol string `json:"hgnc_symbol"`
		} `json:"gene_data"`
	} `json:"results"`
}

// PanelAppGene is one gene entry within a panel.
type PanelAppGene struct {
	Symbol          string
	HGNCID          string
	ConfidenceLevel string
}

// GetPanelGenes fetches one page of a panel's gene list.
func (p *PanelAppClient) GetPanelGenes(ctx context.Context, panelID, page int) ([]PanelAppGene, bool, error) {
	params := url.Values{"page": {fmt.Sprintf("%d", page)}}
	reqURL := fmt.Sprintf("%s/panels/%d/genes/?%s", p.src.Config().BaseURL, panelID, params.Encode())

	var resp panelAppGenesResponse
	if err := p.src.GetJSON(ctx, reqURL, nil, &resp); err != nil {
		return nil, false, err
	}

	genes := make([]PanelAppGene, 0, len(resp.Results))
	for _, r := range resp.Results {
		genes = append(genes, PanelAppGene{
			Symbol: r.GeneData.HGNCSymbol, HGNCID: r.GeneData.HGNCID, ConfidenceLevel: r.ConfidenceLevel,
		})
	}
	return genes, resp.Next != nil, nil
}
