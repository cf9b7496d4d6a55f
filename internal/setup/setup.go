// Package setup is responsible for setting up components.
package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/naarscars/admission/internal/accounts"
	"github.com/naarscars/admission/internal/argon2id"
	"github.com/naarscars/admission/internal/audit"
	"github.com/naarscars/admission/internal/config"
	"github.com/naarscars/admission/internal/database"
	naHttp "github.com/naarscars/admission/internal/http"
	"github.com/naarscars/admission/internal/password"
)

// Database opens the Postgres pool and applies the schema when missing.
func Database(ctx context.Context, conf config.Config) (*database.Database, error) {
	if conf.Database.Database == "" || conf.Database.User == "" {
		return nil, errors.New("database configuration incomplete")
	}

	db, err := database.Open(conf.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	return db, nil
}

// Founder seeds the founder account if one is configured and not present
// yet. The founder bootstraps the invitation graph: without at least one
// member nobody can generate the first code.
func Founder(ctx context.Context, conf config.Config, directory accounts.Directory, logger *slog.Logger) error {
	founder := conf.Founder
	if founder.Email == "" || founder.Password == "" {
		logger.Info("founder not configured, skipping founder setup")
		return nil
	}

	// Validate email and password
	if _, err := mail.ParseAddress(founder.Email); err != nil {
		return fmt.Errorf("parsing founder email: %w", err)
	}
	if err := password.ValidatePassword(string(founder.Password)); err != nil {
		return fmt.Errorf("validating founder password: %w", err)
	}

	// Skip when the founder already exists
	_, err := directory.GetByEmail(ctx, founder.Email)
	if err == nil {
		logger.Info("founder already setup, skipping setup")
		return nil
	}
	if !errors.Is(err, accounts.ErrNotFound) {
		return fmt.Errorf("checking for founder: %w", err)
	}

	hashedPassword, err := argon2id.EncodeHash(string(founder.Password), argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if _, err := directory.Create(ctx, accounts.NewAccount{
		Email:        founder.Email,
		PasswordHash: hashedPassword,
		FirstName:    founder.FirstName,
		LastName:     founder.LastName,
	}); err != nil {
		return fmt.Errorf("creating founder: %w", err)
	}
	logger.Info("successfully setup founder")

	return nil
}

// AuditSink selects the audit destination: the webhook when configured,
// otherwise the application log.
func AuditSink(conf config.Config, logger *slog.Logger, client *retryablehttp.Client) audit.Sink {
	if conf.Audit.WebhookURL == "" {
		return audit.NewLogSink(logger)
	}
	if client == nil {
		client = naHttp.DefaultConfig()
	}
	return audit.NewWebhookSink(conf.Audit.WebhookURL, client)
}
