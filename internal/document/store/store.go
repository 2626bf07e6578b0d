// Package store persists issued documents.
package store

import (
	"context"

	"veridoc/internal/document"
	"veridoc/pkg/domain"
)

type Store interface {
	Save(ctx context.Context, doc *document.IssuedDocument) error
	FindByID(ctx context.Context, id domain.DocumentID) (*document.IssuedDocument, error)
	ListByApplicant(ctx context.Context, applicantID domain.ApplicantID) ([]*document.IssuedDocument, error)
}
