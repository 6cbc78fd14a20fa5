// Package panelapp ingests curated diagnostic gene panels from Genomics
// England PanelApp, applying the two-stage kidney predicate: a broad
// regex candidate match on panel name/disease-group text, then an
// allowlist check against known kidney-relevant disease-group categories
// (internal/filter.IsKidneyRelated).
package panelapp

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
	"github.com/kidney-genetics/ingestion-core/internal/filter"
	"github.com/kidney-genetics/ingestion-core/internal/sources"
	"github.com/kidney-genetics/ingestion-core/pkg/external"
)

// cursor shape: cursorState encoded as JSON, or empty for the first call.
type cursorState struct {
	PanelPage int `json:"panel_page"`
	PanelID   int `json:"panel_id"`
	GenePage  int `json:"gene_page"`
}

type rawPayload struct {
	Panel external.PanelAppPanel `json:"panel"`
	Genes []external.PanelAppGene `json:"genes"`
}

// Source implements sources.DataSource over the PanelApp client, walking
// every panel and, for each kidney-candidate panel, every gene page.
type Source struct {
	client *external.PanelAppClient
}

func New(client *external.PanelAppClient) *Source {
	return &Source{client: client}
}

func (s *Source) Name() domain.SourceName { return domain.SourcePanelApp }

func (s *Source) FetchRaw(ctx context.Context, cursor string) ([]byte, string, bool, error) {
	state := decodeCursor(cursor)

	if state.PanelID == 0 {
		panels, hasMorePanels, err := s.client.ListPanels(ctx, state.PanelPage)
		if err != nil {
			return nil, "", false, err
		}
		candidate := firstKidneyPanel(panels)
		if candidate == nil {
			if !hasMorePanels {
				return nil, "", true, nil
			}
			return nil, encodeCursor(cursorState{PanelPage: state.PanelPage + 1}), false, nil
		}
		genes, hasMoreGenes, err := s.client.GetPanelGenes(ctx, candidate.ID, 1)
		if err != nil {
			return nil, "", false, err
		}
		payload, err := json.Marshal(rawPayload{Panel: *candidate, Genes: genes})
		if err != nil {
			return nil, "", false, err
		}
		next := cursorState{PanelPage: state.PanelPage, PanelID: candidate.ID, GenePage: 2}
		if !hasMoreGenes {
			next = cursorState{PanelPage: state.PanelPage + 1}
			if !hasMorePanels {
				return payload, "", true, nil
			}
		}
		return payload, encodeCursor(next), false, nil
	}

	genes, hasMoreGenes, err := s.client.GetPanelGenes(ctx, state.PanelID, state.GenePage)
	if err != nil {
		return nil, "", false, err
	}
	payload, err := json.Marshal(rawPayload{Panel: external.PanelAppPanel{ID: state.PanelID}, Genes: genes})
	if err != nil {
		return nil, "", false, err
	}
	if hasMoreGenes {
		return payload, encodeCursor(cursorState{PanelPage: state.PanelPage, PanelID: state.PanelID, GenePage: state.GenePage + 1}), false, nil
	}
	return payload, encodeCursor(cursorState{PanelPage: state.PanelPage + 1}), false, nil
}

func (s *Source) Parse(ctx context.Context, payload []byte) ([]sources.RawRecord, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var raw rawPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	out := make([]sources.RawRecord, 0, len(raw.Genes))
	for _, g := range raw.Genes {
		out = append(out, sources.RawRecord{
			GeneMention: g.Symbol,
			Identifier:  strconv.Itoa(raw.Panel.ID) + ":" + g.Symbol,
			CountField:  "panel_count",
			Count:       1,
			Data: map[string]any{
				"panel_id":         raw.Panel.ID,
				"panel_name":       raw.Panel.Name,
				"confidence_level": g.ConfidenceLevel,
				"hgnc_id":          g.HGNCID,
			},
		})
	}
	return out, nil
}

// IsKidneyRelated has already been applied at the panel level during
// FetchRaw (only kidney-candidate panels are ever fetched for genes), so
// every record reaching Parse's output passes.
func (s *Source) IsKidneyRelated(rec sources.RawRecord) bool {
	return true
}

func firstKidneyPanel(panels []external.PanelAppPanel) *external.PanelAppPanel {
	for i := range panels {
		p := panels[i]
		if filter.IsKidneyRelated(p.Name, p.DiseaseGroup, p.DiseaseSub) {
			return &p
		}
	}
	return nil
}

func decodeCursor(cursor string) cursorState {
	if cursor == "" {
		return cursorState{PanelPage: 1}
	}
	var state cursorState
	if err := json.Unmarshal([]byte(cursor), &state); err != nil {
		return cursorState{PanelPage: 1}
	}
	return state
}

func encodeCursor(state cursorState) string {
	b, _ := json.Marshal(state)
	return strings.TrimSpace(string(b))
}
