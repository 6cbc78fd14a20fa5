// Package gencc ingests the GenCC gene-disease validity submissions
// export: a single bulk download (no paged API), parsed row by row out
// of the published spreadsheet's shared-strings and sheet XML parts, in
// the same encoding/xml-unmarshal idiom pkg/external/clinvar.go uses for
// NCBI's eutils responses. No xlsx library is present anywhere in the
// example corpus, so the workbook's two relevant zip parts are decoded
// directly rather than pulling in an unrelated dependency for one file
// format.
package gencc

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strconv"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
	"github.com/kidney-genetics/ingestion-core/internal/filter"
	"github.com/kidney-genetics/ingestion-core/internal/sources"
	"github.com/kidney-genetics/ingestion-core/pkg/external"
)

// Source implements sources.DataSource over the GenCC client. GenCC
// publishes its full export in one response, so FetchRaw is a
// single-page source: the first call returns everything and done=true.
type Source struct {
	client *external.GenCCClient
}

func New(client *external.GenCCClient) *Source {
	return &Source{client: client}
}

func (s *Source) Name() domain.SourceName { return domain.SourceGenCC }

func (s *Source) FetchRaw(ctx context.Context, cursor string) ([]byte, string, bool, error) {
	if cursor == "done" {
		return nil, "", true, nil
	}
	payload, err := s.client.DownloadExport(ctx)
	if err != nil {
		return nil, "", false, err
	}
	return payload, "done", true, nil
}

// sharedStringsXML mirrors the subset of xl/sharedStrings.xml this
// parser needs: an ordered list of unique string values referenced by
// index from the sheet's cell rows.
type sharedStringsXML struct {
	XMLName xml.Name `xml:"sst"`
	SI      []struct {
		T string `xml:"t"`
	} `xml:"si"`
}

type sheetXML struct {
	XMLName xml.Name `xml:"worksheet"`
	SheetData struct {
		Row []struct {
			C []struct {
				R string `xml:"r,attr"`
				T string `xml:"t,attr"`
				V string `xml:"v"`
			} `xml:"c"`
		} `xml:"row"`
	} `xml:"sheetData"`
}

// genCCColumns maps the export's fixed column order (gene_symbol,
// disease_title, classification, submitter_count) to cell indices.
const (
	colGeneSymbol  = 0
	colDiseaseName = 1
	colSubmitters  = 3
)

func (s *Source) Parse(ctx context.Context, payload []byte) ([]sources.RawRecord, error) {
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, err
	}

	strings_, err := readSharedStrings(zr)
	if err != nil {
		return nil, err
	}
	sheet, err := readSheet(zr)
	if err != nil {
		return nil, err
	}

	out := make([]sources.RawRecord, 0, len(sheet.SheetData.Row))
	for i, row := range sheet.SheetData.Row {
		if i == 0 {
			continue // header row
		}
		cells := make([]string, 4)
		for _, c := range row.C {
			col := columnIndex(c.R)
			if col < 0 || col >= len(cells) {
				continue
			}
			cells[col] = resolveCell(c.T, c.V, strings_)
		}
		symbol := cells[colGeneSymbol]
		if symbol == "" {
			continue
		}
		count, _ := strconv.Atoi(cells[colSubmitters])
		out = append(out, sources.RawRecord{
			GeneMention: symbol,
			Identifier:  symbol + ":" + cells[colDiseaseName],
			CountField:  "submitter_count",
			Count:       count,
			Data: map[string]any{
				"disease_name": cells[colDiseaseName],
			},
		})
	}
	return out, nil
}

// IsKidneyRelated matches the submission's disease name against the
// shared kidney predicate; disease-group text is GenCC's closest analog
// to PanelApp's disease_group field, so it is passed as both arguments.
func (s *Source) IsKidneyRelated(rec sources.RawRecord) bool {
	diseaseName, _ := rec.Data["disease_name"].(string)
	return filter.IsKidneyRelated(diseaseName, diseaseName, "")
}

func readSharedStrings(zr *zip.Reader) ([]string, error) {
	f, err := findFile(zr, "xl/sharedStrings.xml")
	if err != nil || f == nil {
		return nil, err
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	var parsed sharedStringsXML
	if err := xml.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	out := make([]string, len(parsed.SI))
	for i, si := range parsed.SI {
		out[i] = si.T
	}
	return out, nil
}

func readSheet(zr *zip.Reader) (*sheetXML, error) {
	f, err := findFile(zr, "xl/worksheets/sheet1.xml")
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, io.ErrUnexpectedEOF
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	var sheet sheetXML
	if err := xml.Unmarshal(data, &sheet); err != nil {
		return nil, err
	}
	return &sheet, nil
}

func findFile(zr *zip.Reader, name string) (*zip.File, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, nil
}

func resolveCell(cellType, raw string, shared []string) string {
	if cellType != "s" {
		return raw
	}
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 || idx >= len(shared) {
		return raw
	}
	return shared[idx]
}

// columnIndex converts a cell reference like "C2" into a zero-based
// column index (A=0, B=1, ...).
func columnIndex(ref string) int {
	col := 0
	for _, r := range ref {
		if r < 'A' || r > 'Z' {
			break
		}
		col = col*26 + int(r-'A'+1)
	}
	return col - 1
}
