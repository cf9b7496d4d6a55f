package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/naarscars/admission/internal/admission"
	"github.com/naarscars/admission/internal/api"
	"github.com/naarscars/admission/internal/config"
	"github.com/naarscars/admission/internal/database"
	"github.com/naarscars/admission/internal/env"
	naHttp "github.com/naarscars/admission/internal/http"
	"github.com/naarscars/admission/internal/invitecode"
	"github.com/naarscars/admission/internal/log"
	"github.com/naarscars/admission/internal/obs"
	"github.com/naarscars/admission/internal/ratelimit"
	"github.com/naarscars/admission/internal/setup"
)

func main() {
	lookupCode := flag.String("lookup-code", "", "print the status of an invite code and exit (support use)")
	reconcile := flag.Bool("reconcile", false, "list consumed codes whose consumer account is missing, then exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	const setupTime = 30 * time.Second
	setupCtx, cancel := context.WithTimeout(ctx, setupTime)
	defer cancel()

	logger := log.New(nil)

	conf, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := setup.Database(setupCtx, conf)
	if err != nil {
		logger.Error("failed to setup database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if *lookupCode != "" {
		if err := printCodeStatus(setupCtx, db, *lookupCode); err != nil {
			logger.Error("lookup failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if *reconcile {
		if err := printOrphanedCodes(setupCtx, db); err != nil {
			logger.Error("reconcile failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	directory := database.AccountDirectory{Database: db}

	logger.DebugContext(ctx, "setting up founder")
	if err := setup.Founder(setupCtx, conf, directory, logger); err != nil {
		logger.Error("failed to setup founder", slog.Any("error", err))
		os.Exit(1)
	}

	httpConfig := naHttp.DefaultConfig()
	httpConfig.Logger = logger
	sink := setup.AuditSink(conf, logger, httpConfig)

	controller := admission.NewController(admission.Config{
		Codes:     db,
		Generator: invitecode.NewGenerator(db),
		Limiter:   ratelimit.NewLimiter(db),
		Directory: directory,
		Sink:      sink,
		Log:       logger,
		GeneratePolicy: ratelimit.Policy{
			Action:   ratelimit.ActionGenerate,
			Limit:    int64(conf.Limits.GeneratePerDay),
			Window:   24 * time.Hour,
			Calendar: true,
		},
		RedeemPolicy: ratelimit.Policy{
			Action: ratelimit.ActionRedeem,
			Limit:  int64(conf.Limits.RedeemPerHour),
			Window: time.Hour,
		},
	})

	obs.Init()

	environment := &env.Env{
		Logger:    logger,
		Database:  db,
		Admission: controller,
		Advisory:  ratelimit.NewAdvisory(time.Second, 3),
		Config:    conf,
	}

	if err := api.Start(ctx, environment); err != nil {
		environment.Logger.Error("API Failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// printCodeStatus is the manual support path: operators can confirm whether
// a reported code exists and whether it was consumed. The API itself never
// discloses this.
func printCodeStatus(ctx context.Context, db *database.Database, raw string) error {
	code, err := invitecode.Normalize(raw)
	if err != nil {
		return fmt.Errorf("normalizing code: %w", err)
	}

	ic, err := db.Lookup(ctx, code)
	if err != nil {
		return fmt.Errorf("looking up code: %w", err)
	}

	if consumer, at, ok := ic.Consumption.Consumed(); ok {
		fmt.Printf("%s: consumed by %s at %s\n", ic.Code, consumer, at.Format(time.RFC3339))
	} else {
		fmt.Printf("%s: available, created by %s at %s\n",
			ic.Code, ic.CreatorID, ic.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

// printOrphanedCodes surfaces consumed codes whose consumer account no
// longer exists. Consumption is permanent, so these need operator follow-up
// rather than automatic rollback.
func printOrphanedCodes(ctx context.Context, db *database.Database) error {
	orphans, err := db.ListConsumedWithoutAccount(ctx)
	if err != nil {
		return fmt.Errorf("listing orphaned codes: %w", err)
	}

	if len(orphans) == 0 {
		fmt.Println("no orphaned invite codes")
		return nil
	}
	for _, ic := range orphans {
		consumer, at, _ := ic.Consumption.Consumed()
		fmt.Printf("%s: consumed by missing account %s at %s (creator %s)\n",
			ic.Code, consumer, at.Format(time.RFC3339), ic.CreatorID)
	}
	return nil
}
