package audit

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"signflow.dev/internal/crypto"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAppendEventGenesisAndChaining(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	chain := New(fixedClock(ts))

	mock.ExpectQuery(regexp.QuoteMeta("select event_hash from audit_logs")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"event_hash"}))
	mock.ExpectExec(regexp.QuoteMeta("insert into audit_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	ev, err := chain.AppendEvent(context.Background(), db, AppendInput{
		TenantID:   "tenant-1",
		ActorKind:  ActorUser,
		ActorID:    "user-1",
		EntityType: EntityDocument,
		EntityID:   "doc-1",
		Action:     ActionStorageUploaded,
		Payload:    map[string]any{"fileName": "contract.pdf"},
	})
	if err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	wantGenesis := crypto.Sha256Hex([]byte(genesisSeed))
	if ev.PrevEventHash != wantGenesis {
		t.Fatalf("expected genesis prevEventHash, got %q", ev.PrevEventHash)
	}
	if ev.EventHash == "" || ev.EventHash == ev.PrevEventHash {
		t.Fatal("expected a fresh, distinct eventHash")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppendEventChainsOntoPreviousHash(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	chain := New(fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	priorHash := crypto.Sha256Hex([]byte("some-prior-event"))

	mock.ExpectQuery(regexp.QuoteMeta("select event_hash from audit_logs")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"event_hash"}).AddRow(priorHash))
	mock.ExpectExec(regexp.QuoteMeta("insert into audit_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	ev, err := chain.AppendEvent(context.Background(), db, AppendInput{
		EntityType: EntityDocument,
		EntityID:   "doc-1",
		Action:     ActionViewed,
	})
	if err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if ev.PrevEventHash != priorHash {
		t.Fatalf("expected chained prevEventHash %q, got %q", priorHash, ev.PrevEventHash)
	}
}

func TestVerifyChainForDocumentDetectsHashMismatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	chain := New(fixedClock(time.Now().UTC()))
	createdAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	genesis := crypto.Sha256Hex([]byte(genesisSeed))

	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "actor_kind", "actor_id", "entity_type", "entity_id",
		"action", "ip", "user_agent", "payload_json", "prev_event_hash", "event_hash", "created_at",
	}).AddRow("ev-1", "tenant-1", "SIGNER", "signer-1", "DOCUMENT", "doc-1",
		"VIEWED", "", "", []byte(`{}`), genesis, "tampered-hash", createdAt)

	mock.ExpectQuery(regexp.QuoteMeta("select id, tenant_id")).WillReturnRows(rows)

	result, err := chain.VerifyChainForDocument(context.Background(), db, "doc-1", nil)
	if err != nil {
		t.Fatalf("VerifyChainForDocument: %v", err)
	}
	if result.IsValid {
		t.Fatal("expected invalid chain")
	}
	if result.Reason != "Hash Mismatch" {
		t.Fatalf("expected Hash Mismatch, got %q", result.Reason)
	}
	if result.BrokenEventID != "ev-1" {
		t.Fatalf("expected ev-1, got %q", result.BrokenEventID)
	}
}

func TestVerifyChainForDocumentDetectsBrokenLink(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	chain := New(fixedClock(time.Now().UTC()))
	t1 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	genesis := crypto.Sha256Hex([]byte(genesisSeed))

	first := Event{
		ID: "ev-1", EntityType: EntityDocument, EntityID: "doc-1",
		Action: ActionViewed, PrevEventHash: genesis, CreatedAt: t1,
	}
	firstHash := recomputeHash(first)

	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "actor_kind", "actor_id", "entity_type", "entity_id",
		"action", "ip", "user_agent", "payload_json", "prev_event_hash", "event_hash", "created_at",
	}).
		AddRow("ev-1", "", "", "", "DOCUMENT", "doc-1", "VIEWED", "", "", []byte(`{}`), genesis, firstHash, t1).
		AddRow("ev-2", "", "", "", "DOCUMENT", "doc-1", "SIGNED", "", "", []byte(`{}`), "not-the-prior-hash", "whatever", t2)

	mock.ExpectQuery(regexp.QuoteMeta("select id, tenant_id")).WillReturnRows(rows)

	result, err := chain.VerifyChainForDocument(context.Background(), db, "doc-1", nil)
	if err != nil {
		t.Fatalf("VerifyChainForDocument: %v", err)
	}
	if result.IsValid {
		t.Fatal("expected invalid chain")
	}
	if result.Reason != "Broken Link" {
		t.Fatalf("expected Broken Link, got %q", result.Reason)
	}
	if result.BrokenEventID != "ev-2" {
		t.Fatalf("expected ev-2, got %q", result.BrokenEventID)
	}
}

func TestVerifyChainForDocumentValidChain(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	chain := New(fixedClock(time.Now().UTC()))
	t1 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	genesis := crypto.Sha256Hex([]byte(genesisSeed))

	first := Event{
		ID: "ev-1", EntityType: EntityDocument, EntityID: "doc-1",
		Action: ActionViewed, PrevEventHash: genesis, CreatedAt: t1,
	}
	firstHash := recomputeHash(first)
	second := Event{
		ID: "ev-2", EntityType: EntityDocument, EntityID: "doc-1",
		Action: ActionSigned, PrevEventHash: firstHash, CreatedAt: t2,
	}
	secondHash := recomputeHash(second)

	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "actor_kind", "actor_id", "entity_type", "entity_id",
		"action", "ip", "user_agent", "payload_json", "prev_event_hash", "event_hash", "created_at",
	}).
		AddRow("ev-1", "", "", "", "DOCUMENT", "doc-1", "VIEWED", "", "", []byte(`{}`), genesis, firstHash, t1).
		AddRow("ev-2", "", "", "", "DOCUMENT", "doc-1", "SIGNED", "", "", []byte(`{}`), firstHash, secondHash, t2)

	mock.ExpectQuery(regexp.QuoteMeta("select id, tenant_id")).WillReturnRows(rows)

	result, err := chain.VerifyChainForDocument(context.Background(), db, "doc-1", nil)
	if err != nil {
		t.Fatalf("VerifyChainForDocument: %v", err)
	}
	if !result.IsValid {
		t.Fatalf("expected valid chain, got reason %q on %q", result.Reason, result.BrokenEventID)
	}
	if result.Count != 2 {
		t.Fatalf("expected count 2, got %d", result.Count)
	}
}
