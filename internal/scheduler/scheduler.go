// Package scheduler implements the Reminder Scheduler hook (C10): the two
// entry points an external cron invokes, dueReminders(now) and
// expireOverdue(now). The cron loop itself is a named external
// collaborator (spec.md's Non-goals list it explicitly) - this package
// only owns what happens when the hook fires: enumerate due documents,
// notify their pending signers, and sweep deadline-passed ones to EXPIRED.
package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"signflow.dev/internal/dbx"
	"signflow.dev/internal/document"
	"signflow.dev/internal/notify"
	"signflow.dev/internal/obs"
)

// DocumentService is the narrow slice of document.Service the scheduler
// needs.
type DocumentService interface {
	DueReminders(ctx context.Context, q dbx.Querier, now time.Time) ([]document.Document, error)
	ExpireOverdueNow(ctx context.Context, q dbx.Querier, now time.Time) (int, error)
}

// SignerLookup resolves a document's pending signers for the reminder
// fan-out, mirroring the projection internal/document already consumes for
// the public integrity check.
type SignerLookup interface {
	SummariesByDocument(ctx context.Context, q dbx.Querier, documentID string) ([]document.SignerSummary, error)
}

// Scheduler wires document.Service's hooks to notify.Notifier, grounded on
// the same "collaborator calls us, we do one unit of work and return" shape
// internal/document.Service and internal/signing.Service already use.
type Scheduler struct {
	db       *sql.DB
	docs     DocumentService
	signers  SignerLookup
	notifier notify.Notifier
	baseURL  string
	now      func() time.Time
}

// New constructs a Scheduler.
func New(db *sql.DB, docs DocumentService, signers SignerLookup, notifier notify.Notifier, publicBaseURL string) *Scheduler {
	return &Scheduler{db: db, docs: docs, signers: signers, notifier: notifier, baseURL: publicBaseURL, now: time.Now}
}

// RunDueReminders is the dueReminders(now) hook: every pending document with
// autoReminders and a deadline inside the next 24h gets one reminder email
// per still-pending signer. Delivery failures are logged, never fatal -
// the next scheduler tick tries again.
func (s *Scheduler) RunDueReminders(ctx context.Context) (int, error) {
	now := s.now().UTC()
	docs, err := s.docs.DueReminders(ctx, s.db, now)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, doc := range docs {
		summaries, err := s.signers.SummariesByDocument(ctx, s.db, doc.ID)
		if err != nil {
			obs.Error("scheduler: list signers for reminder failed", err, map[string]any{"documentId": doc.ID})
			continue
		}
		for _, sg := range summaries {
			if sg.Status != "PENDING" && sg.Status != "VIEWED" {
				continue
			}
			if sg.Email == "" {
				continue
			}
			msg := notify.Email{
				To:      sg.Email,
				Subject: fmt.Sprintf("Lembrete: assinatura pendente de %q", doc.Title),
				HTML:    fmt.Sprintf(`<p>Olá %s,</p><p>O documento "%s" ainda aguarda sua assinatura e vence em breve.</p><p>Acesse: %s/sign/%s</p>`, sg.Name, doc.Title, s.baseURL, doc.ID),
			}
			if err := s.notifier.SendEmail(ctx, doc.TenantID, msg); err != nil {
				obs.Error("scheduler: reminder delivery failed", err, map[string]any{"documentId": doc.ID, "signer": sg.Email})
				continue
			}
			obs.RemindersSent.Inc()
			sent++
		}
	}
	return sent, nil
}

// RunExpireOverdue is the expireOverdue(now) hook: delegates the bulk
// transition to document.Service, which also appends the per-document
// STATUS_CHANGED audit entries.
func (s *Scheduler) RunExpireOverdue(ctx context.Context) (int, error) {
	now := s.now().UTC()
	return s.docs.ExpireOverdueNow(ctx, s.db, now)
}
