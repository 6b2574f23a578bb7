package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/gmsas95/meditime/internal/app"
	"github.com/gmsas95/meditime/internal/config"
	apperrors "github.com/gmsas95/meditime/internal/errors"
	"github.com/gmsas95/meditime/internal/store"
)

var Version = "dev"

// Env is what a one-shot command runs against. The service has no
// scheduler: commands edit the store and a running daemon picks the
// change up on its next poll.
type Env struct {
	Out     io.Writer
	Config  *config.Config
	Store   store.ScheduleStore
	Service *app.Service
}

// NewEnv loads the active user from st
func NewEnv(ctx context.Context, cfg *config.Config, st store.ScheduleStore, logger *zap.Logger, out io.Writer) (*Env, error) {
	svc := app.NewService(st, nil, logger, app.WithRespectCalendar(cfg.Reminders.RespectCalendar))
	if err := svc.Load(ctx); err != nil {
		return nil, err
	}
	return &Env{Out: out, Config: cfg, Store: st, Service: svc}, nil
}

func (e *Env) printf(format string, args ...any) {
	fmt.Fprintf(e.Out, format, args...)
}

func (e *Env) println(args ...any) {
	fmt.Fprintln(e.Out, args...)
}

// PrintError writes err for a terminal, listing field errors one per line
func PrintError(w io.Writer, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || len(appErr.Fields) == 0 {
		fmt.Fprintf(w, "❌ Error: %v\n", err)
		return
	}

	fmt.Fprintf(w, "❌ %s\n", appErr.Message)
	keys := make([]string, 0, len(appErr.Fields))
	for k := range appErr.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, appErr.Fields[k])
	}
}
