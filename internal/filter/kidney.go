package filter

import "regexp"

// kidneyPattern is deliberately narrow: "renal", "kidney", "nephro" as
// whole-word-ish stems. A prior implementation matched a bare "tubul*"
// stem and plain substring "renal", which pulled in unrelated adrenal
// gland and tubulointerstitial-but-non-renal panels; adrenalExclude runs
// first specifically to keep "adrenal" out of the renal match.
var (
	kidneyPattern    = regexp.MustCompile(`(?i)(kidney|renal|nephro)`)
	adrenalExclude   = regexp.MustCompile(`(?i)adrenal`)
)

// allowedDiseaseGroups is the curated set of PanelApp/GenCC disease-group
// labels confirmed kidney-relevant; it is the second filtering stage, run
// after the broad regex narrows the candidate set, so a disease group
// whose free-text name happens to contain "renal" in an unrelated sense
// still has to clear a known-good category list.
var allowedDiseaseGroups = map[string]bool{
	"renal and urinary tract disorders": true,
	"nephrology":                        true,
	"cystic kidney disease":             true,
	"renal tract calcification":         true,
	"congenital anomalies of the kidney and urinary tract": true,
	"glomerular disease":                true,
	"tubulopathy":                       true,
	"steroid resistant nephrotic syndrome": true,
}

// IsKidneyRelated runs the two-stage predicate: a broad regex candidate
// match over name/category text (with adrenal explicitly excluded), then
// an allowlist check against known-good disease-group categories when one
// is available. When no category is supplied (free-text-only sources),
// the regex stage alone decides.
func IsKidneyRelated(name, diseaseGroup, diseaseSub string) bool {
	candidate := isCandidate(name) || isCandidate(diseaseGroup) || isCandidate(diseaseSub)
	if !candidate {
		return false
	}
	if diseaseGroup == "" {
		return true
	}
	return allowedDiseaseGroups[normalizeGroup(diseaseGroup)] || allowedDiseaseGroups[normalizeGroup(diseaseSub)]
}

func isCandidate(text string) bool {
	if text == "" {
		return false
	}
	if adrenalExclude.MatchString(text) && !kidneyPattern.MatchString(adrenalExclude.ReplaceAllString(text, "")) {
		return false
	}
	return kidneyPattern.MatchString(text)
}

func normalizeGroup(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r = r - 'A' + 'a'
		}
		out = append(out, r)
	}
	return string(out)
}
