package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_StringsAreStripped(t *testing.T) {
	assert.Equal(t, "BRCA1", Normalize("  BRCA1  "))
	assert.Equal(t, "", Normalize("   "))
}

func TestNormalize_MapIsOrderIndependent(t *testing.T) {
	a := Normalize(map[string]string{"gene": "BRCA1", "source": "gnomad"})
	b := Normalize(map[string]string{"source": "gnomad", "gene": "BRCA1"})
	assert.Equal(t, a, b)
}

func TestNormalize_CompoundValuesAreOrderIndependent(t *testing.T) {
	type filters struct {
		Genes   []string
		Sources map[string]int
	}
	a := Normalize(filters{Genes: []string{"BRCA1", "PKD1"}, Sources: map[string]int{"gnomad": 1, "hpo": 2}})
	b := Normalize(filters{Genes: []string{"BRCA1", "PKD1"}, Sources: map[string]int{"hpo": 2, "gnomad": 1}})
	assert.Equal(t, a, b)
}

func TestNormalize_DifferentCompoundValuesHashDifferently(t *testing.T) {
	a := Normalize([]string{"BRCA1"})
	b := Normalize([]string{"PKD1"})
	assert.NotEqual(t, a, b)
}
