// Package service is the service control capability. Units are driven
// through systemd over D-Bus; supervision itself stays with systemd.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Controller starts, stops and inspects units.
type Controller interface {
	Start(ctx context.Context, unit string) error
	Stop(ctx context.Context, unit string) error
	Restart(ctx context.Context, unit string) error
	Reload(ctx context.Context, unit string) error
	Active(ctx context.Context, unit string) (bool, error)
}

// unitConn is the subset of *dbus.Conn used by Systemd.
type unitConn interface {
	StartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	RestartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	ReloadUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	GetUnitPropertyContext(ctx context.Context, unit, propertyName string) (*dbus.Property, error)
	Close()
}

// DefaultJobTimeout bounds how long a unit job may take before the call
// gives up waiting.
const DefaultJobTimeout = 2 * time.Minute

// Systemd controls units through the system manager.
type Systemd struct {
	conn       unitConn
	jobTimeout time.Duration
	logger     *slog.Logger
}

var _ Controller = (*Systemd)(nil)

// NewSystemd connects to the system bus.
func NewSystemd(ctx context.Context, logger *slog.Logger) (*Systemd, error) {
	conn, err := dbus.NewWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to systemd: %w", err)
	}
	return newSystemd(conn, logger), nil
}

func newSystemd(conn unitConn, logger *slog.Logger) *Systemd {
	if logger == nil {
		logger = slog.Default()
	}
	return &Systemd{conn: conn, jobTimeout: DefaultJobTimeout, logger: logger}
}

// Close releases the bus connection.
func (s *Systemd) Close() {
	s.conn.Close()
}

func (s *Systemd) Start(ctx context.Context, unit string) error {
	return s.job(ctx, "start", unit, s.conn.StartUnitContext)
}

func (s *Systemd) Stop(ctx context.Context, unit string) error {
	return s.job(ctx, "stop", unit, s.conn.StopUnitContext)
}

func (s *Systemd) Restart(ctx context.Context, unit string) error {
	return s.job(ctx, "restart", unit, s.conn.RestartUnitContext)
}

func (s *Systemd) Reload(ctx context.Context, unit string) error {
	return s.job(ctx, "reload", unit, s.conn.ReloadUnitContext)
}

// Active reports whether the unit's ActiveState is "active".
func (s *Systemd) Active(ctx context.Context, unit string) (bool, error) {
	prop, err := s.conn.GetUnitPropertyContext(ctx, unit, "ActiveState")
	if err != nil {
		return false, fmt.Errorf("%s: read ActiveState: %w", unit, err)
	}
	state, ok := prop.Value.Value().(string)
	if !ok {
		return false, fmt.Errorf("%s: unexpected ActiveState %v", unit, prop.Value)
	}
	return state == "active", nil
}

type jobFunc func(ctx context.Context, name, mode string, ch chan<- string) (int, error)

// job queues a unit job in "replace" mode and waits for its result.
func (s *Systemd) job(ctx context.Context, op, unit string, queue jobFunc) error {
	done := make(chan string, 1)
	if _, err := queue(ctx, unit, "replace", done); err != nil {
		return &UnitError{Unit: unit, Op: op, Err: err}
	}

	timer := time.NewTimer(s.jobTimeout)
	defer timer.Stop()

	select {
	case result := <-done:
		if result != "done" {
			return &UnitError{Unit: unit, Op: op, Result: result}
		}
		s.logger.Info("unit job done", "unit", unit, "op", op)
		return nil
	case <-timer.C:
		return &UnitError{Unit: unit, Op: op, Err: fmt.Errorf("no job result after %s", s.jobTimeout)}
	case <-ctx.Done():
		return &UnitError{Unit: unit, Op: op, Err: ctx.Err()}
	}
}

// UnitError reports a unit job that did not finish with "done".
type UnitError struct {
	Unit   string
	Op     string
	Result string // systemd job result, e.g. "failed" or "timeout"
	Err    error
}

// Error implements the error interface.
func (e *UnitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Unit, e.Err)
	}
	return fmt.Sprintf("%s %s: job %s", e.Op, e.Unit, e.Result)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

// IsUnitError reports whether err is a UnitError.
func IsUnitError(err error) bool {
	var ue *UnitError
	return errors.As(err, &ue)
}
