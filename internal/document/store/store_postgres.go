package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"veridoc/internal/document"
	"veridoc/internal/secfeature"
	"veridoc/internal/sentinel"
	"veridoc/pkg/domain"
)

// PostgresStore persists issued documents in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed document store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, doc *document.IssuedDocument) error {
	if doc == nil {
		return fmt.Errorf("issued document is required")
	}
	var reportJSON []byte
	if doc.Report != nil {
		var err error
		reportJSON, err = json.Marshal(doc.Report)
		if err != nil {
			return fmt.Errorf("marshal feature report: %w", err)
		}
	}
	query := `
		INSERT INTO issued_documents
			(id, applicant_id, application_id, doc_bytes, feature_report, anchor_ref, signature, receipt, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(doc.ID),
		uuid.UUID(doc.ApplicantID),
		uuid.UUID(doc.ApplicationID),
		doc.Bytes,
		reportJSON,
		doc.AnchorRef,
		doc.Signature,
		doc.Receipt,
		doc.IssuedAt,
		doc.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("save issued document: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save issued document rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.DocumentID) (*document.IssuedDocument, error) {
	query := `
		SELECT id, applicant_id, application_id, doc_bytes, feature_report, anchor_ref, signature, receipt, issued_at, expires_at
		FROM issued_documents
		WHERE id = $1
	`
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find issued document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) ListByApplicant(ctx context.Context, applicantID domain.ApplicantID) ([]*document.IssuedDocument, error) {
	query := `
		SELECT id, applicant_id, application_id, doc_bytes, feature_report, anchor_ref, signature, receipt, issued_at, expires_at
		FROM issued_documents
		WHERE applicant_id = $1
		ORDER BY issued_at
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(applicantID))
	if err != nil {
		return nil, fmt.Errorf("list issued documents: %w", err)
	}
	defer rows.Close()

	var docs []*document.IssuedDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issued document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issued documents: %w", err)
	}
	return docs, nil
}

type documentRow interface {
	Scan(dest ...any) error
}

func scanDocument(row documentRow) (*document.IssuedDocument, error) {
	var doc document.IssuedDocument
	var docID, applicantID, applicationID uuid.UUID
	var reportJSON []byte
	if err := row.Scan(
		&docID,
		&applicantID,
		&applicationID,
		&doc.Bytes,
		&reportJSON,
		&doc.AnchorRef,
		&doc.Signature,
		&doc.Receipt,
		&doc.IssuedAt,
		&doc.ExpiresAt,
	); err != nil {
		return nil, err
	}
	doc.ID = domain.DocumentID(docID)
	doc.ApplicantID = domain.ApplicantID(applicantID)
	doc.ApplicationID = domain.ApplicationID(applicationID)
	if len(reportJSON) > 0 {
		var report secfeature.Report
		if err := json.Unmarshal(reportJSON, &report); err != nil {
			return nil, fmt.Errorf("unmarshal feature report: %w", err)
		}
		doc.Report = &report
	}
	return &doc, nil
}
