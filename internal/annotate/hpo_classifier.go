package annotate

import (
	"sync"
	"time"
)

// PhenotypeTerm is one HPO term attached to a gene's annotation.
type PhenotypeTerm struct {
	ID   string
	Name string
}

// HPOClassification is the per-gene output of ClassifyHPO.
type HPOClassification struct {
	ClinicalGroup      string
	ClinicalGroupScores map[string]float64
	Confidence         string // insufficient | low | medium | high
	OnsetGroup         string
	OnsetProbabilities map[string]float64
	IsSyndromic        bool
	CategoryScores     map[string]float64
}

// Confidence tiers for ClassifyHPO's clinical-group call, keyed off the
// winning group's normalized score.
const (
	ConfidenceInsufficient = "insufficient"
	ConfidenceLow          = "low"
	ConfidenceMedium       = "medium"
	ConfidenceHigh         = "high"
)

// minPhenotypesForConfidence is the phenotype-set size below which a
// clinical-group call is never more than "insufficient", regardless of
// how concentrated the matches are.
const minPhenotypesForConfidence = 3

// syndromicCategories are the four categories scored by the syndromic
// assessor; its descendant term sets are curated HPO subtree roots
// rather than computed from a live ontology graph, since no ontology
// traversal library is present anywhere in the example corpus.
var syndromicCategories = []string{"growth", "skeletal", "neurologic", "head_neck"}

// clinicalGroupWeights scales each group's raw signature match fraction
// before the cross-group normalization in groupScores; the complement,
// nephrolithiasis and cancer groups are weighted down relative to the
// core kidney-structural groups so a couple of incidental matches there
// can't outscore a tight glomerular match.
var clinicalGroupWeights = map[string]float64{
	"glomerular":         1.0,
	"tubulointerstitial": 1.0,
	"cystic":             1.0,
	"cakut":              1.0,
	"complement":         0.8,
	"nephrolithiasis":    0.8,
	"cancer":             0.6,
}

func weightOf(group string) float64 {
	if w, ok := clinicalGroupWeights[group]; ok {
		return w
	}
	return 1.0
}

// descendantSets maps each signature root to its (curated) descendant
// term IDs. Computed once and cached for 24h per spec.md's "compute
// descendant sets once per run, cached 24h" requirement.
type descendantSets struct {
	clinicalGroups map[string]map[string]bool // group name -> term ID set
	onsetGroups    map[string]map[string]bool
	syndromic      map[string]map[string]bool // category -> term ID set
}

var (
	descendantCache     *descendantSets
	descendantCacheAt    time.Time
	descendantCacheMu    sync.Mutex
	descendantCacheTTL   = 24 * time.Hour
)

// curatedDescendants returns the hard-coded HPO subtree membership this
// classifier uses in place of a live ontology descendant query.
func curatedDescendants() *descendantSets {
	return &descendantSets{
		clinicalGroups: map[string]map[string]bool{
			"glomerular":         setOf("HP:0000099", "HP:0100611", "HP:0012622"),
			"tubulointerstitial": setOf("HP:0001925", "HP:0000121", "HP:0003774"),
			"cystic":             setOf("HP:0000113", "HP:0008659"),
			"cakut":              setOf("HP:0000110", "HP:0000085", "HP:0000107"),
			"complement":         setOf("HP:0410030", "HP:0005575", "HP:0032648"),
			"nephrolithiasis":    setOf("HP:0000787", "HP:0010934"),
			"cancer":             setOf("HP:0100615", "HP:0002664", "HP:0010786"),
		},
		onsetGroups: map[string]map[string]bool{
			"congenital": setOf("HP:0003577", "HP:0030674"),
			"childhood":  setOf("HP:0011463", "HP:0003621"),
			"adult":      setOf("HP:0003581", "HP:0003584"),
		},
		syndromic: map[string]map[string]bool{
			"growth":     setOf("HP:0001507", "HP:0000256", "HP:0004322"),
			"skeletal":   setOf("HP:0000924", "HP:0002652"),
			"neurologic": setOf("HP:0000707", "HP:0001250"),
			"head_neck":  setOf("HP:0000152", "HP:0000365", "HP:0000598"), // HP:0000365 = hearing loss
		},
	}
}

func setOf(ids ...string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func getDescendantSets() *descendantSets {
	descendantCacheMu.Lock()
	defer descendantCacheMu.Unlock()
	if descendantCache != nil && time.Since(descendantCacheAt) < descendantCacheTTL {
		return descendantCache
	}
	descendantCache = curatedDescendants()
	descendantCacheAt = time.Now()
	return descendantCache
}

// syndromicThreshold is the minimum category score (matches / total
// phenotypes) to classify a gene as syndromic.
const syndromicThreshold = 0.05

// ClassifyHPO implements spec.md §4.5's HPO classification algorithm over
// the gene's FULL phenotype set. The syndromic assessor in particular
// must run over every phenotype, never a kidney-filtered subset: the
// system this core replaces once pre-filtered to non-kidney phenotypes
// before syndromic scoring and produced 100% isolated misclassification
// as a result (every gene looked isolated because its kidney phenotypes,
// which don't fall in any syndromic category, were the only phenotypes
// left to score against).
func ClassifyHPO(phenotypes []PhenotypeTerm) HPOClassification {
	sets := getDescendantSets()

	result := HPOClassification{
		ClinicalGroupScores: make(map[string]float64),
		Confidence:          ConfidenceInsufficient,
		OnsetProbabilities:  make(map[string]float64),
		CategoryScores:      make(map[string]float64),
	}

	if len(phenotypes) == 0 {
		return result
	}

	result.ClinicalGroupScores = groupScores(phenotypes, sets.clinicalGroups)
	result.ClinicalGroup = argmax(result.ClinicalGroupScores)
	result.Confidence = confidenceOf(len(phenotypes), result.ClinicalGroupScores[result.ClinicalGroup])

	onsetCounts := countByGroup(phenotypes, sets.onsetGroups)
	totalOnsetMatches := 0
	for _, c := range onsetCounts {
		totalOnsetMatches += c
	}
	bestOnset := ""
	bestOnsetProb := 0.0
	for group, count := range onsetCounts {
		prob := 0.0
		if totalOnsetMatches > 0 {
			prob = float64(count) / float64(totalOnsetMatches)
		}
		result.OnsetProbabilities[group] = prob
		if prob > bestOnsetProb {
			bestOnsetProb = prob
			bestOnset = group
		}
	}
	result.OnsetGroup = bestOnset

	total := len(phenotypes)
	maxScore := 0.0
	for _, category := range syndromicCategories {
		matches := 0
		for _, p := range phenotypes {
			if sets.syndromic[category][p.ID] {
				matches++
			}
		}
		score := float64(matches) / float64(total)
		result.CategoryScores[category] = score
		if score > maxScore {
			maxScore = score
		}
	}
	result.IsSyndromic = maxScore >= syndromicThreshold

	return result
}

// groupScores implements spec.md §4.5 step 2: each group's raw score is
// (matched_terms / |signature_terms|) * weight, then every group's raw
// score is divided by the sum across groups so the result sums to 1.
// When nothing matches any group, every score is 0 rather than NaN.
func groupScores(phenotypes []PhenotypeTerm, groups map[string]map[string]bool) map[string]float64 {
	counts := countByGroup(phenotypes, groups)
	raw := make(map[string]float64, len(groups))
	sum := 0.0
	for group, termSet := range groups {
		if len(termSet) == 0 {
			continue
		}
		score := (float64(counts[group]) / float64(len(termSet))) * weightOf(group)
		raw[group] = score
		sum += score
	}
	scores := make(map[string]float64, len(raw))
	for group, score := range raw {
		if sum > 0 {
			scores[group] = score / sum
		} else {
			scores[group] = 0
		}
	}
	return scores
}

func argmax(scores map[string]float64) string {
	best := ""
	bestScore := 0.0
	for group, score := range scores {
		if score > bestScore {
			bestScore = score
			best = group
		}
	}
	return best
}

// confidenceOf buckets a clinical-group call: a phenotype set too small
// to mean anything is always insufficient regardless of concentration,
// otherwise the winning group's normalized share of the total decides
// the tier.
func confidenceOf(phenotypeCount int, topScore float64) string {
	switch {
	case phenotypeCount < minPhenotypesForConfidence || topScore <= 0:
		return ConfidenceInsufficient
	case topScore < 0.34:
		return ConfidenceLow
	case topScore < 0.67:
		return ConfidenceMedium
	default:
		return ConfidenceHigh
	}
}

func countByGroup(phenotypes []PhenotypeTerm, groups map[string]map[string]bool) map[string]int {
	counts := make(map[string]int, len(groups))
	for group, termSet := range groups {
		for _, p := range phenotypes {
			if termSet[p.ID] {
				counts[group]++
			}
		}
	}
	return counts
}
