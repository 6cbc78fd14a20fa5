package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyHPO_EmptySetIsInsufficient(t *testing.T) {
	result := ClassifyHPO(nil)
	assert.Equal(t, ConfidenceInsufficient, result.Confidence)
	assert.Empty(t, result.ClinicalGroup)
}

func TestClassifyHPO_AllSevenGroupsScored(t *testing.T) {
	result := ClassifyHPO([]PhenotypeTerm{{ID: "HP:0000099"}})
	for _, group := range []string{"glomerular", "tubulointerstitial", "cystic", "cakut", "complement", "nephrolithiasis", "cancer"} {
		_, ok := result.ClinicalGroupScores[group]
		assert.True(t, ok, "expected group %s to be scored", group)
	}
}

func TestClassifyHPO_ScoresSumToOne(t *testing.T) {
	result := ClassifyHPO([]PhenotypeTerm{
		{ID: "HP:0000099"}, // glomerular
		{ID: "HP:0000787"}, // nephrolithiasis
	})
	sum := 0.0
	for _, score := range result.ClinicalGroupScores {
		sum += score
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestClassifyHPO_ConfidenceTracksConcentration(t *testing.T) {
	focused := ClassifyHPO([]PhenotypeTerm{
		{ID: "HP:0000099"}, {ID: "HP:0100611"}, {ID: "HP:0012622"},
	})
	require.Equal(t, "glomerular", focused.ClinicalGroup)
	assert.Equal(t, ConfidenceHigh, focused.Confidence)

	sparse := ClassifyHPO([]PhenotypeTerm{{ID: "HP:0000099"}})
	assert.Equal(t, ConfidenceInsufficient, sparse.Confidence, "a single phenotype is never enough signal for a confident call")
}

func TestClassifyHPO_SyndromicScoresOverFullPhenotypeSet(t *testing.T) {
	result := ClassifyHPO([]PhenotypeTerm{
		{ID: "HP:0000099"}, // kidney phenotype, no syndromic category
		{ID: "HP:0001507"}, // growth
	})
	assert.True(t, result.IsSyndromic)
}
