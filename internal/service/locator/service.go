// Package locator maintains the object locator directory: the append-only
// map from an embedded entity's oid to the document that owns it.
package locator

import (
	"context"
	"errors"
	"fmt"

	"github.com/tapewise/backend/internal/model/transcript"
	"github.com/tapewise/backend/internal/store"
)

// EntityTypeSegment is the only embedded entity type the core registers
// today; the directory schema supports more.
const EntityTypeSegment = "transcript_segment"

// Service wraps the locators collection with the ownership contract.
type Service struct {
	locators store.Locators
}

// NewService builds a locator directory over the given collection.
func NewService(locators store.Locators) *Service {
	return &Service{locators: locators}
}

// Register idempotently binds an oid to its owning document. Re-registering
// with the same parent refreshes the entry; a different parent is rejected
// with Conflict and the original binding stands.
func (s *Service) Register(ctx context.Context, oidValue, entityType, parentCollection, parentID, parentPrefix, path string) error {
	return s.locators.Upsert(ctx, transcript.ObjectLocator{
		Oid:              oidValue,
		EntityType:       entityType,
		ParentCollection: parentCollection,
		ParentID:         parentID,
		ParentPrefix:     parentPrefix,
		Path:             path,
	})
}

// RegisterSegment binds a segment oid to its message document.
func (s *Service) RegisterSegment(ctx context.Context, segmentOid, messageID string) error {
	return s.Register(ctx, segmentOid, EntityTypeSegment, "messages", messageID, "msg", "transcription.segments")
}

// Resolve returns the locator record for an oid, or NotFound.
func (s *Service) Resolve(ctx context.Context, oidValue string) (*transcript.ObjectLocator, error) {
	return s.locators.FindByOid(ctx, oidValue)
}

// VerifyOwner confirms the oid is bound to the given message before a
// mutation proceeds. An unregistered oid passes: registration happens
// lazily on first reconciliation, and the segment lookup that follows
// still guards against ids the message does not contain.
func (s *Service) VerifyOwner(ctx context.Context, oidValue, messageID string) error {
	locator, err := s.locators.FindByOid(ctx, oidValue)
	if err != nil {
		var notFound *store.NotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	if locator.ParentID != messageID {
		return &store.ConflictError{
			Message: fmt.Sprintf("oid %s belongs to document %s, not %s", oidValue, locator.ParentID, messageID),
		}
	}
	return nil
}
