// Package normalizer resolves free-text gene mentions to canonical
// Gene rows, falling back to a human staging queue for ambiguous
// matches. Normalize is the only exported entry point: there is no
// synchronous wrapper that spins its own goroutines internally, since
// that double-entry pattern was a source of deadlocks in the system
// this core replaces.
package normalizer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
	"github.com/kidney-genetics/ingestion-core/pkg/external"
)

// Mention is one raw gene reference to resolve.
type Mention struct {
	RawText string
	Source  domain.SourceName
}

// Resolution is the outcome of resolving one Mention.
type Resolution struct {
	Mention        Mention
	ResolvedGene   *domain.Gene
	StagingID      *uuid.UUID
	RejectedReason string
}

// Resolved reports whether the mention resolved to a canonical gene.
func (r Resolution) Resolved() bool { return r.ResolvedGene != nil }

// Staged reports whether the mention was sent to human review.
func (r Resolution) Staged() bool { return r.StagingID != nil }

// Rejected reports whether the mention was rejected outright.
func (r Resolution) Rejected() bool { return r.RejectedReason != "" }

// looksLikeSymbol matches tokens with the general shape of an HGNC
// symbol: 1-20 letters, digits or hyphens, starting with a letter.
var looksLikeSymbol = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9\-]{0,19}$`)

// Normalizer resolves mentions against local gene identity, an HGNC
// remote lookup, and a staging queue for ambiguous cases.
type Normalizer struct {
	genes        domain.GeneRepository
	staging      domain.StagingRepository
	hgnc         *external.HGNCClient
	cfg          domain.NormalizerConfig
	log          *logrus.Logger
}

// New builds a Normalizer.
func New(genes domain.GeneRepository, staging domain.StagingRepository, hgnc *external.HGNCClient, cfg domain.NormalizerConfig, log *logrus.Logger) *Normalizer {
	return &Normalizer{genes: genes, staging: staging, hgnc: hgnc, cfg: cfg, log: log}
}

// Normalize resolves a batch of mentions in five steps: clean, local
// lookup, remote lookup (fanned out over errgroup, rate-limited by the
// HGNC client itself), disposition, and tie-break. This is the only
// correct entry point for gene resolution.
func (n *Normalizer) Normalize(ctx context.Context, mentions []Mention) ([]Resolution, error) {
	cleaned := make([]Mention, 0, len(mentions))
	resolutions := make(map[string]*Resolution, len(mentions))

	for _, m := range mentions {
		token := clean(m.RawText)
		if token == "" || !looksLikeSymbol.MatchString(token) {
			resolutions[m.RawText] = &Resolution{Mention: m, RejectedReason: "does not look like a gene symbol"}
			continue
		}
		cleaned = append(cleaned, Mention{RawText: token, Source: m.Source})
	}

	tokens := make([]string, len(cleaned))
	for i, m := range cleaned {
		tokens[i] = m.RawText
	}

	local, err := n.genes.FindBySymbolsOrAliases(ctx, tokens)
	if err != nil {
		return nil, fmt.Errorf("local gene lookup: %w", err)
	}

	var unresolved []Mention
	for _, m := range cleaned {
		key := strings.ToUpper(m.RawText)
		if gene, ok := local[key]; ok {
			resolutions[m.RawText] = &Resolution{Mention: m, ResolvedGene: gene}
			continue
		}
		unresolved = append(unresolved, m)
	}

	remoteMatches, err := n.remoteLookup(ctx, unresolved)
	if err != nil {
		return nil, fmt.Errorf("remote HGNC lookup: %w", err)
	}

	for _, m := range unresolved {
		candidates := remoteMatches[m.RawText]
		res := n.disposition(ctx, m, candidates)
		resolutions[m.RawText] = res
	}

	out := make([]Resolution, 0, len(mentions))
	for _, m := range mentions {
		if res, ok := resolutions[m.RawText]; ok {
			out = append(out, *res)
		}
	}
	return out, nil
}

func clean(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	isPunctOnly := true
	for _, r := range token {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			isPunctOnly = false
			break
		}
	}
	if isPunctOnly {
		return ""
	}
	return token
}

// remoteLookup fans out HGNC searches for unresolved tokens, bounded by
// the HGNC client's own rate limiter; errgroup provides the cooperative
// fan-out/fan-in Go uses in place of single-thread async suspension
// points.
func (n *Normalizer) remoteLookup(ctx context.Context, mentions []Mention) (map[string][]domain.CandidateMatch, error) {
	results := make(map[string][]domain.CandidateMatch, len(mentions))
	if len(mentions) == 0 {
		return results, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	type lookup struct {
		token   string
		matches []domain.CandidateMatch
	}
	out := make(chan lookup, len(mentions))

	for _, m := range mentions {
		m := m
		g.Go(func() error {
			matches, err := n.hgnc.Search(ctx, m.RawText)
			if err != nil {
				return fmt.Errorf("hgnc search for %s: %w", m.RawText, err)
			}
			out <- lookup{token: m.RawText, matches: matches}
			return nil
		})
	}

	go func() {
		g.Wait()
		close(out)
	}()

	for l := range out {
		results[l.token] = l.matches
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// disposition applies the auto-accept/review/reject thresholds and the
// tie-break rule for multiple equally-scored candidates. An auto-accept
// candidate whose HGNC ID already has a canonical Gene row links to it
// instead of attempting a second Create that would collide on the
// hgnc_id unique constraint; a tie-break that can't be resolved
// unambiguously is routed to staging rather than forced.
func (n *Normalizer) disposition(ctx context.Context, m Mention, candidates []domain.CandidateMatch) *Resolution {
	if len(candidates) == 0 {
		return &Resolution{Mention: m, RejectedReason: "no HGNC match found"}
	}

	best, ok := tieBreak(candidates)
	if !ok {
		return n.stage(ctx, m, candidates, "ambiguous tie-break: no criterion resolved among equally-scored candidates")
	}

	switch {
	case best.Confidence >= n.cfg.AutoAcceptThreshold:
		existing, err := n.genes.GetByHGNCID(ctx, best.HGNCID)
		if err != nil {
			if n.log != nil {
				n.log.WithError(err).WithField("hgnc_id", best.HGNCID).Warn("hgnc_id lookup failed during normalization")
			}
			return n.stage(ctx, m, candidates, fmt.Sprintf("hgnc_id lookup failed: %v", err))
		}
		if existing != nil {
			return &Resolution{Mention: m, ResolvedGene: existing}
		}

		gene := &domain.Gene{
			ID:             uuid.New(),
			ApprovedSymbol: best.ApprovedSymbol,
			HGNCID:         best.HGNCID,
			CreatedAt:      time.Now(),
		}
		if err := n.genes.Create(ctx, gene); err != nil {
			if n.log != nil {
				n.log.WithError(err).WithField("symbol", best.ApprovedSymbol).Warn("creating gene during normalization failed")
			}
			return n.stage(ctx, m, candidates, fmt.Sprintf("gene creation failed: %v", err))
		}
		return &Resolution{Mention: m, ResolvedGene: gene}

	case best.Confidence >= n.cfg.RejectThreshold:
		return n.stage(ctx, m, candidates, "confidence requires human review")

	default:
		return &Resolution{Mention: m, RejectedReason: "confidence below reject threshold"}
	}
}

// stage writes a StagingRecord for a mention that can't be auto-resolved.
func (n *Normalizer) stage(ctx context.Context, m Mention, candidates []domain.CandidateMatch, reason string) *Resolution {
	rec := &domain.StagingRecord{
		ID:         uuid.New(),
		RawText:    m.RawText,
		SourceHint: m.Source,
		Candidates: candidates,
		Status:     domain.StagingPending,
		Reason:     reason,
		CreatedAt:  time.Now(),
	}
	if err := n.staging.Create(ctx, rec); err != nil {
		return &Resolution{Mention: m, RejectedReason: fmt.Sprintf("staging failed: %v", err)}
	}
	id := rec.ID
	return &Resolution{Mention: m, StagingID: &id}
}

// tieBreak picks among equally-scored candidates in two passes: prefer
// an exact approved-symbol match over alias/previous-symbol matches,
// then fall back to HGNC's reported chromosome locus for the ones that
// remain tied. The second bool return is false when no criterion
// separates the survivors, meaning the tie is genuinely ambiguous and
// must go to staging rather than be forced.
func tieBreak(candidates []domain.CandidateMatch) (domain.CandidateMatch, bool) {
	tied := []domain.CandidateMatch{candidates[0]}
	for _, c := range candidates[1:] {
		switch {
		case c.Confidence > tied[0].Confidence:
			tied = []domain.CandidateMatch{c}
		case c.Confidence == tied[0].Confidence:
			tied = append(tied, c)
		}
	}
	if len(tied) == 1 {
		return tied[0], true
	}

	if exact := filterMatchType(tied, "exact"); len(exact) == 1 {
		return exact[0], true
	} else if len(exact) > 1 {
		tied = exact
	}

	byLocus := make(map[string][]domain.CandidateMatch)
	for _, c := range tied {
		if c.Locus == "" {
			continue
		}
		byLocus[c.Locus] = append(byLocus[c.Locus], c)
	}
	if len(byLocus) == 1 {
		for _, cs := range byLocus {
			return cs[0], true
		}
	}

	return tied[0], false
}

func filterMatchType(candidates []domain.CandidateMatch, matchType string) []domain.CandidateMatch {
	var out []domain.CandidateMatch
	for _, c := range candidates {
		if c.MatchType == matchType {
			out = append(out, c)
		}
	}
	return out
}
