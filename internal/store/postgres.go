package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"kpbuilder/api/internal/proposal"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetProposalDocument loads the proposal row. Missing rows surface as
// sql.ErrNoRows through the wrapped error.
func (s *PostgresStore) GetProposalDocument(ctx context.Context, proposalID string) (ProposalRecord, error) {
	var rec ProposalRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, COALESCE(client_id, ''), document::text, status, version,
			COALESCE(share_password_hash, ''), created_at, updated_at
		FROM proposals
		WHERE id = $1
	`, proposalID).Scan(
		&rec.ID,
		&rec.WorkspaceID,
		&rec.ClientID,
		&rec.Document,
		&rec.Status,
		&rec.Version,
		&rec.SharePasswordHash,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return ProposalRecord{}, fmt.Errorf("get proposal: %w", err)
	}
	return rec, nil
}

// SaveProposal upserts the document and bumps version and updated_at. The
// returned proposal carries the stored version and timestamps.
func (s *PostgresStore) SaveProposal(ctx context.Context, p proposal.Proposal) (proposal.Proposal, error) {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.WorkspaceID) == "" {
		return proposal.Proposal{}, fmt.Errorf("save proposal: id and workspace id are required")
	}
	encoded, err := json.Marshal(p)
	if err != nil {
		return proposal.Proposal{}, fmt.Errorf("marshal proposal: %w", err)
	}
	status := string(p.Status)
	if status == "" {
		status = string(proposal.StatusDraft)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO proposals (id, workspace_id, client_id, document, status, version)
		VALUES ($1, $2, NULLIF($3, ''), $4::jsonb, $5, 1)
		ON CONFLICT (id) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			document = EXCLUDED.document,
			status = EXCLUDED.status,
			version = proposals.version + 1,
			updated_at = NOW()
		RETURNING version, created_at, updated_at
	`, p.ID, p.WorkspaceID, p.ClientID, string(encoded), status).Scan(&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return proposal.Proposal{}, fmt.Errorf("save proposal: %w", err)
	}
	p.Status = proposal.Status(status)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

// SetSharePassword stores a bcrypt hash; an empty hash removes protection.
func (s *PostgresStore) SetSharePassword(ctx context.Context, proposalID, hash string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE proposals SET share_password_hash = NULLIF($2, '') WHERE id = $1
	`, proposalID, hash)
	if err != nil {
		return fmt.Errorf("set share password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set share password: %w", sql.ErrNoRows)
	}
	return nil
}

func (s *PostgresStore) GetWorkspace(ctx context.Context, workspaceID string) (proposal.Workspace, error) {
	var (
		id, name   string
		letterhead []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, letterhead::text FROM workspaces WHERE id = $1
	`, workspaceID).Scan(&id, &name, &letterhead)
	if err != nil {
		return proposal.Workspace{}, fmt.Errorf("get workspace: %w", err)
	}
	var raw map[string]any
	if len(letterhead) > 0 {
		if err := json.Unmarshal(letterhead, &raw); err != nil {
			return proposal.Workspace{}, fmt.Errorf("decode workspace letterhead: %w", err)
		}
	}
	ws := proposal.ParseWorkspace(raw)
	ws.ID = id
	ws.Name = name
	return ws, nil
}

func (s *PostgresStore) GetClient(ctx context.Context, clientID string) (proposal.Client, error) {
	var c proposal.Client
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, company, role FROM clients WHERE id = $1
	`, clientID).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Company, &c.Role)
	if err != nil {
		return proposal.Client{}, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

const productColumns = `id, workspace_id, name, description, sku, price::float8, unit, currency`

func (s *PostgresStore) ListProducts(ctx context.Context, workspaceID string) ([]proposal.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE workspace_id = $1
		ORDER BY name ASC, id ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// ListAllProducts feeds the search index at startup.
func (s *PostgresStore) ListAllProducts(ctx context.Context) ([]proposal.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY workspace_id, id`)
	if err != nil {
		return nil, fmt.Errorf("list all products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

func (s *PostgresStore) GetProduct(ctx context.Context, productID string) (proposal.Product, error) {
	var p proposal.Product
	err := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, productID).Scan(
		&p.ID, &p.WorkspaceID, &p.Name, &p.Description, &p.SKU, &p.Price, &p.Unit, &p.Currency,
	)
	if err != nil {
		return proposal.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// SearchProductsILIKE matches name, description or sku case-insensitively.
func (s *PostgresStore) SearchProductsILIKE(ctx context.Context, workspaceID, query string, limit int) ([]proposal.Product, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE workspace_id = $1
			AND (name ILIKE $2 OR description ILIKE $2 OR sku ILIKE $2)
		ORDER BY name ASC, id ASC
		LIMIT $3
	`, workspaceID, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

func scanProducts(rows *sql.Rows) ([]proposal.Product, error) {
	items := make([]proposal.Product, 0)
	for rows.Next() {
		var p proposal.Product
		if err := rows.Scan(&p.ID, &p.WorkspaceID, &p.Name, &p.Description, &p.SKU, &p.Price, &p.Unit, &p.Currency); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return items, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

const templateColumns = `id, workspace_id, name, description, category, defaults::text, sections::text, is_default, created_at`

func (s *PostgresStore) ListTemplates(ctx context.Context, workspaceID string) ([]TemplateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+templateColumns+`
		FROM proposal_templates
		WHERE workspace_id = $1
		ORDER BY is_default DESC, created_at DESC, id ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	items := make([]TemplateRecord, 0)
	for rows.Next() {
		var rec TemplateRecord
		if err := scanTemplate(rows, &rec); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetTemplate(ctx context.Context, templateID string) (TemplateRecord, error) {
	var rec TemplateRecord
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM proposal_templates WHERE id = $1`, templateID)
	if err := scanTemplate(row, &rec); err != nil {
		return TemplateRecord{}, fmt.Errorf("get template: %w", err)
	}
	return rec, nil
}

// InsertTemplate stores a template. A default template demotes every other
// default of the workspace in the same transaction.
func (s *PostgresStore) InsertTemplate(ctx context.Context, rec TemplateRecord) (TemplateRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return TemplateRecord{}, fmt.Errorf("begin insert template: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if rec.IsDefault {
		if _, err := tx.ExecContext(ctx, `
			UPDATE proposal_templates SET is_default = FALSE
			WHERE workspace_id = $1 AND is_default
		`, rec.WorkspaceID); err != nil {
			return TemplateRecord{}, fmt.Errorf("clear default templates: %w", err)
		}
	}

	defaults := rec.Defaults
	if len(defaults) == 0 {
		defaults = []byte("{}")
	}
	sections := rec.Sections
	if len(sections) == 0 {
		sections = []byte("[]")
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO proposal_templates (id, workspace_id, name, description, category, defaults, sections, is_default)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8)
		RETURNING created_at
	`, rec.ID, rec.WorkspaceID, rec.Name, rec.Description, rec.Category, string(defaults), string(sections), rec.IsDefault).Scan(&rec.CreatedAt)
	if err != nil {
		return TemplateRecord{}, fmt.Errorf("insert template: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return TemplateRecord{}, fmt.Errorf("commit insert template: %w", err)
	}
	rec.Defaults = defaults
	rec.Sections = sections
	return rec, nil
}

func (s *PostgresStore) DeleteTemplate(ctx context.Context, templateID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM proposal_templates WHERE id = $1`, templateID)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete template: %w", sql.ErrNoRows)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row scanner, rec *TemplateRecord) error {
	return row.Scan(
		&rec.ID,
		&rec.WorkspaceID,
		&rec.Name,
		&rec.Description,
		&rec.Category,
		&rec.Defaults,
		&rec.Sections,
		&rec.IsDefault,
		&rec.CreatedAt,
	)
}

// IsNotFound reports whether err wraps sql.ErrNoRows.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
