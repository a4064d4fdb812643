// Package audit implements the tamper-evident, per-entity hash chain (C1).
// The chain is scoped per entityId, not per tenant and not globally: every
// distinct entity (a document, a signer) grows its own independent
// sequence of events, each one committing to its predecessor's hash.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/crypto"
	"signflow.dev/internal/dbx"
	"signflow.dev/internal/ids"
	"signflow.dev/internal/obs"
)

// ActorKind identifies who performed the audited action.
type ActorKind string

const (
	ActorUser   ActorKind = "USER"
	ActorSigner ActorKind = "SIGNER"
	ActorSystem ActorKind = "SYSTEM"
)

// EntityType identifies what kind of entity an event's chain belongs to.
type EntityType string

const (
	EntityDocument EntityType = "DOCUMENT"
	EntitySigner   EntityType = "SIGNER"
	EntityToken    EntityType = "TOKEN"
	EntityOTP      EntityType = "OTP"
	EntityStorage  EntityType = "STORAGE"
	EntitySystem   EntityType = "SYSTEM"
	EntityUser     EntityType = "USER"
	EntityTenant   EntityType = "TENANT"
)

// Action enumerates the audited operations named across §4 of the spec.
type Action string

const (
	ActionUserCreated       Action = "USER_CREATED"
	ActionLoginSuccess      Action = "LOGIN_SUCCESS"
	ActionStorageUploaded   Action = "STORAGE_UPLOADED"
	ActionStatusChanged     Action = "STATUS_CHANGED"
	ActionViewed            Action = "VIEWED"
	ActionOtpSent           Action = "OTP_SENT"
	ActionOtpFailed         Action = "OTP_FAILED"
	ActionOtpVerified       Action = "OTP_VERIFIED"
	ActionSigned            Action = "SIGNED"
	ActionCertificateIssued Action = "CERTIFICATE_ISSUED"
)

// genesisSeed is hashed to produce the prevEventHash of the first event in
// any entity's chain.
const genesisSeed = "genesis_block_for_entity"

// Event is one tamper-evident audit row.
type Event struct {
	ID            string
	TenantID      string
	ActorKind     ActorKind
	ActorID       string
	EntityType    EntityType
	EntityID      string
	Action        Action
	IP            string
	UserAgent     string
	PayloadJSON   map[string]any
	PrevEventHash string
	EventHash     string
	CreatedAt     time.Time
}

// AppendInput is what callers provide; the chain computes the rest.
type AppendInput struct {
	TenantID   string
	ActorKind  ActorKind
	ActorID    string
	EntityType EntityType
	EntityID   string
	Action     Action
	IP         string
	UserAgent  string
	Payload    map[string]any
}

// Querier is satisfied by both *sql.DB and *sql.Tx, so the chain can be
// driven either standalone or as part of a caller's transaction.
type Querier = dbx.Querier

// Chain appends and verifies per-entity hash chains against a SQL store.
type Chain struct {
	now func() time.Time
}

// New constructs a Chain. now defaults to time.Now when nil; tests override
// it for deterministic timestamps.
func New(now func() time.Time) *Chain {
	if now == nil {
		now = time.Now
	}
	return &Chain{now: now}
}

// AppendEvent persists one event into entityId's chain. The caller is
// responsible for driving q inside a transaction when it wants the append
// to be atomic with other writes (e.g. C9's signer commit); within a single
// transaction, sequential appends for the same entityId correctly observe
// each other because each call re-reads the latest row before computing
// prevEventHash - callers running concurrent transactions against the same
// entityId must use SERIALIZABLE isolation (see internal/store/pg) so the
// second writer's read of "latest event" cannot be a stale snapshot.
func (c *Chain) AppendEvent(ctx context.Context, q Querier, in AppendInput) (*Event, error) {
	if in.EntityID == "" || in.EntityType == "" || in.Action == "" {
		return nil, fmt.Errorf("%w: entityId, entityType and action are required", apperr.ErrValidation)
	}

	prev, err := c.latestHash(ctx, q, in.EntityID)
	if err != nil {
		return nil, err
	}

	now := c.now().UTC()
	payloadToHash := canonicalFields(in)
	serialized := canonicalJSON(payloadToHash) + now.Format(time.RFC3339Nano)
	eventHash := crypto.Sha256Hex([]byte(prev + serialized))

	ev := &Event{
		ID:            ids.New(),
		TenantID:      in.TenantID,
		ActorKind:     in.ActorKind,
		ActorID:       in.ActorID,
		EntityType:    in.EntityType,
		EntityID:      in.EntityID,
		Action:        in.Action,
		IP:            in.IP,
		UserAgent:     in.UserAgent,
		PayloadJSON:   in.Payload,
		PrevEventHash: prev,
		EventHash:     eventHash,
		CreatedAt:     now,
	}

	payload, err := json.Marshal(in.Payload)
	if err != nil {
		return nil, err
	}

	_, err = q.ExecContext(ctx, `
		insert into audit_logs
			(id, tenant_id, actor_kind, actor_id, entity_type, entity_id, action,
			 ip, user_agent, payload_json, prev_event_hash, event_hash, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, ev.ID, ev.TenantID, string(ev.ActorKind), ev.ActorID, string(ev.EntityType), ev.EntityID,
		string(ev.Action), ev.IP, ev.UserAgent, payload, ev.PrevEventHash, ev.EventHash, ev.CreatedAt)
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (c *Chain) latestHash(ctx context.Context, q Querier, entityID string) (string, error) {
	row := q.QueryRowContext(ctx, `
		select event_hash from audit_logs
		where entity_id = $1
		order by created_at desc, id desc
		limit 1
	`, entityID)
	var hash string
	err := row.Scan(&hash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return crypto.Sha256Hex([]byte(genesisSeed)), nil
	case err != nil:
		return "", err
	default:
		return hash, nil
	}
}

// VerifyResult is the outcome of walking one entity's chain.
type VerifyResult struct {
	IsValid       bool
	Count         int
	BrokenEventID string
	Reason        string
}

// VerifyChainForDocument walks every event belonging to documentId and its
// signers, checking both the link (prevEventHash chaining) and the hash
// (recomputed from stored fields) invariants.
func (c *Chain) VerifyChainForDocument(ctx context.Context, q Querier, documentID string, signerIDs []string) (VerifyResult, error) {
	entityIDs := append([]string{documentID}, signerIDs...)
	events, err := c.loadOrdered(ctx, q, entityIDs)
	if err != nil {
		return VerifyResult{}, err
	}

	for i, ev := range events {
		if i > 0 {
			if ev.EntityID == events[i-1].EntityID && ev.PrevEventHash != events[i-1].EventHash {
				obs.AuditChainVerify.WithLabelValues("broken_link").Inc()
				return VerifyResult{IsValid: false, BrokenEventID: ev.ID, Reason: "Broken Link"}, nil
			}
		}
		recomputed := recomputeHash(ev)
		if recomputed != ev.EventHash {
			obs.AuditChainVerify.WithLabelValues("hash_mismatch").Inc()
			return VerifyResult{IsValid: false, BrokenEventID: ev.ID, Reason: "Hash Mismatch"}, nil
		}
	}
	obs.AuditChainVerify.WithLabelValues("valid").Inc()
	return VerifyResult{IsValid: true, Count: len(events)}, nil
}

// ListForDocument returns every event for documentID and its signers,
// createdAt-ascending, for the "GET /documents/:id/audit" trail view.
func (c *Chain) ListForDocument(ctx context.Context, q Querier, documentID string, signerIDs []string) ([]Event, error) {
	entityIDs := append([]string{documentID}, signerIDs...)
	return c.loadOrdered(ctx, q, entityIDs)
}

func (c *Chain) loadOrdered(ctx context.Context, q Querier, entityIDs []string) ([]Event, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]any, len(entityIDs))
	query := "select id, tenant_id, actor_kind, actor_id, entity_type, entity_id, action, ip, user_agent, payload_json, prev_event_hash, event_hash, created_at from audit_logs where entity_id in ("
	for i, id := range entityIDs {
		if i > 0 {
			query += ","
		}
		query += fmt.Sprintf("$%d", i+1)
		placeholders[i] = id
	}
	query += ") order by created_at asc, id asc"

	rows, err := q.QueryContext(ctx, query, placeholders...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var payload []byte
		var actorKind, entityType, action string
		if err := rows.Scan(&ev.ID, &ev.TenantID, &actorKind, &ev.ActorID, &entityType, &ev.EntityID,
			&action, &ev.IP, &ev.UserAgent, &payload, &ev.PrevEventHash, &ev.EventHash, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.ActorKind = ActorKind(actorKind)
		ev.EntityType = EntityType(entityType)
		ev.Action = Action(action)
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &ev.PayloadJSON)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func recomputeHash(ev Event) string {
	fields := canonicalFields(AppendInput{
		ActorKind:  ev.ActorKind,
		ActorID:    ev.ActorID,
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		Action:     ev.Action,
		IP:         ev.IP,
		UserAgent:  ev.UserAgent,
		Payload:    ev.PayloadJSON,
	})
	serialized := canonicalJSON(fields) + ev.CreatedAt.Format(time.RFC3339Nano)
	return crypto.Sha256Hex([]byte(ev.PrevEventHash + serialized))
}

// kv is an ordered key/value pair used to build the canonical payload.
type kv struct {
	Key   string
	Value any
}

func canonicalFields(in AppendInput) []kv {
	fields := []kv{
		{"actorKind", in.ActorKind},
		{"actorId", in.ActorID},
		{"entityType", in.EntityType},
		{"entityId", in.EntityID},
		{"action", in.Action},
		{"ip", in.IP},
		{"userAgent", in.UserAgent},
	}
	keys := make([]string, 0, len(in.Payload))
	for k := range in.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, kv{k, in.Payload[k]})
	}
	return fields
}

// canonicalJSON renders fields as a JSON object preserving their given
// order, so the same logical payload always serializes identically
// regardless of Go map iteration order.
func canonicalJSON(fields []kv) string {
	out := make([]byte, 0, 256)
	out = append(out, '{')
	for i, f := range fields {
		if i > 0 {
			out = append(out, ',')
		}
		keyJSON, _ := json.Marshal(f.Key)
		valJSON, err := json.Marshal(f.Value)
		if err != nil {
			valJSON = []byte("null")
		}
		out = append(out, keyJSON...)
		out = append(out, ':')
		out = append(out, valJSON...)
	}
	out = append(out, '}')
	return string(out)
}
