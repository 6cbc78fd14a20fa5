package orchestrator

import "github.com/kidney-genetics/ingestion-core/internal/domain"

// annotationOrder is the dependency-ordered sequence annotation sources
// run in: HGNC must complete before GTEx/Descartes since they consume
// the Ensembl cross-reference HGNC's FetchAnnotation populates via
// UpdateGene. The remaining sources have no cross-source dependency and
// simply follow HGNC.
var annotationOrder = []domain.SourceName{
	domain.AnnotationHGNC,
	domain.AnnotationGnomAD,
	domain.AnnotationClinVar,
	domain.AnnotationHPO,
	domain.AnnotationMGI,
	domain.AnnotationSTRING,
	domain.AnnotationGTEx,
	domain.AnnotationDescartes,
}

// ingestOrder is the order ingestion sources run in when triggered
// together; ingestion sources are mutually independent (each writes its
// own evidence rows), so this order only affects scheduling fairness,
// not correctness.
var ingestOrder = []domain.SourceName{
	domain.SourcePubTator,
	domain.SourceGenCC,
	domain.SourcePanelApp,
	domain.SourceDiagnosticPanels,
	domain.SourceLiterature,
}

// dependsOnHGNC reports whether an annotation source requires HGNC to
// have completed first.
func dependsOnHGNC(name domain.SourceName) bool {
	return name == domain.AnnotationGTEx || name == domain.AnnotationDescartes
}
