// Package repository implements the Postgres-backed persistence layer
// for gene identity, evidence, annotations, staging, and run state, plus
// a SQLite fallback for the staging queue for single-process/offline
// development.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// GeneRepository persists canonical Gene identity rows.
type GeneRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewGeneRepository builds a GeneRepository.
func NewGeneRepository(db *pgxpool.Pool, log *logrus.Logger) *GeneRepository {
	return &GeneRepository{db: db, log: log}
}

// Create inserts a new gene, including its alias list.
func (r *GeneRepository) Create(ctx context.Context, gene *domain.Gene) error {
	query := `
		INSERT INTO genes (id, approved_symbol, hgnc_id, ensembl_gene_id, ncbi_gene_id, aliases, deactivated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		gene.ID, gene.ApprovedSymbol, gene.HGNCID, gene.EnsemblGeneID, gene.NCBIGeneID,
		gene.Aliases, gene.Deactivated, gene.CreatedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{"hgnc_id": gene.HGNCID, "symbol": gene.ApprovedSymbol, "error": err}).
			Error("failed to create gene")
		return fmt.Errorf("creating gene: %w", err)
	}
	return nil
}

// GetByHGNCID retrieves a gene by its HGNC identifier.
func (r *GeneRepository) GetByHGNCID(ctx context.Context, hgncID string) (*domain.Gene, error) {
	query := `
		SELECT id, approved_symbol, hgnc_id, ensembl_gene_id, ncbi_gene_id, aliases, deactivated, created_at
		FROM genes WHERE hgnc_id = $1`

	var g domain.Gene
	err := r.db.QueryRow(ctx, query, hgncID).Scan(
		&g.ID, &g.ApprovedSymbol, &g.HGNCID, &g.EnsemblGeneID, &g.NCBIGeneID,
		&g.Aliases, &g.Deactivated, &g.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting gene by hgnc_id %s: %w", hgncID, err)
	}
	return &g, nil
}

// FindBySymbolsOrAliases batches a local lookup of candidate tokens
// against approved symbols and aliases, returning a map keyed by the
// matched token so the normalizer can resolve many raw inputs in one
// round trip.
func (r *GeneRepository) FindBySymbolsOrAliases(ctx context.Context, tokens []string) (map[string]*domain.Gene, error) {
	if len(tokens) == 0 {
		return map[string]*domain.Gene{}, nil
	}

	upper := make([]string, len(tokens))
	for i, t := range tokens {
		upper[i] = strings.ToUpper(strings.TrimSpace(t))
	}

	query := `
		SELECT id, approved_symbol, hgnc_id, ensembl_gene_id, ncbi_gene_id, aliases, deactivated, created_at
		FROM genes
		WHERE upper(approved_symbol) = ANY($1) OR aliases && $1`

	rows, err := r.db.Query(ctx, query, upper)
	if err != nil {
		return nil, fmt.Errorf("finding genes by symbols/aliases: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*domain.Gene)
	for rows.Next() {
		var g domain.Gene
		if err := rows.Scan(&g.ID, &g.ApprovedSymbol, &g.HGNCID, &g.EnsemblGeneID, &g.NCBIGeneID,
			&g.Aliases, &g.Deactivated, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning gene row: %w", err)
		}
		for _, token := range upper {
			if strings.ToUpper(g.ApprovedSymbol) == token {
				result[token] = &g
				continue
			}
			for _, alias := range g.Aliases {
				if strings.ToUpper(alias) == token {
					result[token] = &g
				}
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gene rows: %w", err)
	}
	return result, nil
}

// ListActive returns every non-deactivated gene, for the orchestrator's
// annotation pass.
func (r *GeneRepository) ListActive(ctx context.Context) ([]*domain.Gene, error) {
	query := `
		SELECT id, approved_symbol, hgnc_id, ensembl_gene_id, ncbi_gene_id, aliases, deactivated, created_at
		FROM genes WHERE NOT deactivated ORDER BY approved_symbol`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing active genes: %w", err)
	}
	defer rows.Close()

	var genes []*domain.Gene
	for rows.Next() {
		var g domain.Gene
		if err := rows.Scan(&g.ID, &g.ApprovedSymbol, &g.HGNCID, &g.EnsemblGeneID, &g.NCBIGeneID,
			&g.Aliases, &g.Deactivated, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning gene row: %w", err)
		}
		genes = append(genes, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gene rows: %w", err)
	}
	return genes, nil
}

// AddAlias appends a new alias to a gene's alias list, idempotently.
func (r *GeneRepository) AddAlias(ctx context.Context, geneID uuid.UUID, alias string) error {
	query := `
		UPDATE genes
		SET aliases = array_append(aliases, $2)
		WHERE id = $1 AND NOT ($2 = ANY(aliases))`

	_, err := r.db.Exec(ctx, query, geneID, alias)
	if err != nil {
		return fmt.Errorf("adding alias %s to gene %s: %w", alias, geneID, err)
	}
	return nil
}
