// Package env provides a structure for managing application-wide dependencies.
package env

import (
	"context"
	"log/slog"

	"github.com/naarscars/admission/internal/admission"
	"github.com/naarscars/admission/internal/config"
	"github.com/naarscars/admission/internal/database"
	"github.com/naarscars/admission/internal/log"
	"github.com/naarscars/admission/internal/ratelimit"
)

type Env struct {
	Logger    *slog.Logger
	Database  *database.Database
	Admission *admission.Controller
	Advisory  *ratelimit.Advisory
	Config    config.Config
}

type envKeyType struct{}

var envKey envKeyType

// WithCtx attaches the environment to a context.
func WithCtx(ctx context.Context, e *Env) context.Context {
	return context.WithValue(ctx, envKey, e)
}

// EnvFromCtx extracts the environment from a context. A context without an
// environment yields Null().
func EnvFromCtx(ctx context.Context) *Env {
	if e, ok := ctx.Value(envKey).(*Env); ok && e != nil {
		return e
	}
	return Null()
}

func Null() *Env {
	return &Env{
		Logger: log.NullLogger(),
	}
}
