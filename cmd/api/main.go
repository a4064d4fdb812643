package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"signflow.dev/internal/audit"
	"signflow.dev/internal/authx"
	"signflow.dev/internal/config"
	"signflow.dev/internal/document"
	"signflow.dev/internal/httpapi"
	"signflow.dev/internal/notify"
	"signflow.dev/internal/obs"
	"signflow.dev/internal/pdfstamp"
	"signflow.dev/internal/scheduler"
	"signflow.dev/internal/signer"
	"signflow.dev/internal/signing"
	"signflow.dev/internal/store/pg"
	"signflow.dev/internal/tenant"
)

var version = "0.1.0"

// reminderInterval is how often the background scheduler checks for due
// reminders and overdue documents. The original system leaves this trigger
// external to an operator-run cron job; this binary owns its own ticker so
// it stays self-contained.
const reminderInterval = 15 * time.Minute

// healthPollInterval is how often the gRPC health service re-checks DB
// readiness between HealthCheck/Watch RPCs.
const healthPollInterval = 10 * time.Second

func main() {
	obs.Init()
	obs.InitBuildInfo(version, "")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := pg.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	uploads, err := document.NewLocalFileStore(cfg.UploadsDir)
	if err != nil {
		log.Fatalf("uploads dir: %v", err)
	}

	users := pg.Users{}
	tenantUsers := pg.TenantUsers{Users: users}
	settings := pg.Settings{DB: db.Conn()}

	notifier := notify.NewHTTPNotifier(settings, notify.ProcessCredentials{
		ResendAPIKey:   cfg.ResendAPIKey,
		ResendFrom:     cfg.ResendFrom,
		ZapiInstanceID: cfg.ZapiInstanceID,
		ZapiToken:      cfg.ZapiToken,
		ZapiClientTok:  cfg.ZapiClientTok,
	})

	chain := audit.New(time.Now)

	tenantSvc := tenant.NewService(tenant.Store{
		Tenants:  pg.Tenants{},
		Plans:    pg.Plans{},
		Members:  pg.Members{},
		Settings: settings,
	}, tenantUsers, notifier, cfg.FrontURL)

	authxSvc := authx.NewService(db.Conn(), authx.Store{
		Users:    users,
		Sessions: pg.Sessions{},
		OTP:      pg.OTP{},
	}, tenantSvc, tenantSvc, chain, notifier, []byte(cfg.JWTSecret), []byte(cfg.JWTRefreshSecret))

	// document and signer each need a narrow view of the other
	// (document.SignerLookup / signer.DocumentLookup); docSvc is built
	// first with signers left nil and wired in once signerSvc exists.
	docSvc := document.NewService(document.Store{
		Documents: pg.Documents{},
		Folders:   pg.Folders{},
		Files:     uploads,
	}, pg.PlanLookup{}, users, nil, chain)

	signerSvc := signer.NewService(signer.Store{
		Signers:     pg.Signers{},
		ShareTokens: pg.ShareTokens{},
	}, docSvc, pg.OTP{}, notifier, chain)

	docSvc.SetSignerLookup(signerSvc)

	signingSvc := signing.NewService(pg.Signers{}, docSvc, pg.Certificates{}, users, chain,
		pdfstamp.NewBuiltinStamper(), notifier, settings, cfg.APIBaseURL)

	sched := scheduler.New(db.Conn(), docSvc, signerSvc, notifier, cfg.APIBaseURL)
	schedCtx, schedCancel := context.WithCancel(context.Background())
	go runScheduler(schedCtx, sched)

	api := httpapi.New(httpapi.Deps{
		DB: db.Conn(), Authx: authxSvc, Tenants: tenantSvc, Documents: docSvc,
		Signers: signerSvc, Signing: signingSvc, Chain: chain,
		Version: version, PublicBaseURL: cfg.APIBaseURL,
	})

	readyProbe := httpapi.ReadyProbe{DB: db.Conn()}
	grpcSrv, healthSrv := httpapi.NewGRPCHealthServer(readyProbe)
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}
	go httpapi.WatchHealth(schedCtx, readyProbe, healthSrv, healthPollInterval)
	go func() {
		if err := grpcSrv.Serve(grpcLis); err != nil {
			log.Printf("grpc serve: %v", err)
		}
	}()
	log.Printf("Starting signflow-api grpc health on :%s", cfg.GRPCPort)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting signflow-api %s on %s", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	schedCancel()
	grpcSrv.GracefulStop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

// runScheduler drives the reminder/expiry sweep on a fixed interval until
// ctx is cancelled.
func runScheduler(ctx context.Context, sched *scheduler.Scheduler) {
	ticker := time.NewTicker(reminderInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := sched.RunDueReminders(ctx); err != nil {
				obs.Error("scheduler: due reminders", err, nil)
			} else if n > 0 {
				obs.Info("scheduler: sent reminders", map[string]any{"count": n})
			}
			if n, err := sched.RunExpireOverdue(ctx); err != nil {
				obs.Error("scheduler: expire overdue", err, nil)
			} else if n > 0 {
				obs.Info("scheduler: expired documents", map[string]any{"count": n})
			}
		}
	}
}
