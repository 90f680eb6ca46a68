package locator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/tapewise/backend/internal/service/locator"
	"github.com/tapewise/backend/internal/store"
	"github.com/tapewise/backend/internal/store/memory"
)

const (
	segmentOid = "ch_64a0000000000000000000aa"
	messageA   = "64a000000000000000000001"
	messageB   = "64a000000000000000000002"
)

func TestRegisterSegmentIsIdempotent(t *testing.T) {
	svc := locator.NewService(memory.New().Locators())

	if err := svc.RegisterSegment(context.Background(), segmentOid, messageA); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := svc.RegisterSegment(context.Background(), segmentOid, messageA); err != nil {
		t.Fatalf("re-register with same parent must succeed: %v", err)
	}

	record, err := svc.Resolve(context.Background(), segmentOid)
	if err != nil {
		t.Fatalf("Resolve err: %v", err)
	}
	if record.ParentID != messageA || record.ParentCollection != "messages" {
		t.Fatalf("locator record: %+v", record)
	}
	if record.EntityType != locator.EntityTypeSegment || record.Path != "transcription.segments" {
		t.Fatalf("locator record: %+v", record)
	}
}

func TestRegisterSegmentForeignParentConflicts(t *testing.T) {
	svc := locator.NewService(memory.New().Locators())

	if err := svc.RegisterSegment(context.Background(), segmentOid, messageA); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := svc.RegisterSegment(context.Background(), segmentOid, messageB)
	var conflict *store.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}

	// The original binding stands.
	record, err := svc.Resolve(context.Background(), segmentOid)
	if err != nil {
		t.Fatalf("Resolve err: %v", err)
	}
	if record.ParentID != messageA {
		t.Fatalf("binding overwritten: %+v", record)
	}
}

func TestResolveUnknownOid(t *testing.T) {
	svc := locator.NewService(memory.New().Locators())
	_, err := svc.Resolve(context.Background(), segmentOid)
	var notFound *store.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestVerifyOwner(t *testing.T) {
	svc := locator.NewService(memory.New().Locators())
	if err := svc.RegisterSegment(context.Background(), segmentOid, messageA); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.VerifyOwner(context.Background(), segmentOid, messageA); err != nil {
		t.Fatalf("owner must pass: %v", err)
	}

	err := svc.VerifyOwner(context.Background(), segmentOid, messageB)
	var conflict *store.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("foreign parent must conflict, got %v", err)
	}

	// Unregistered oids pass; the caller's own segment lookup still guards.
	if err := svc.VerifyOwner(context.Background(), "ch_64a0000000000000000000bb", messageA); err != nil {
		t.Fatalf("unregistered oid must pass: %v", err)
	}
}
