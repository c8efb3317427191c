// Package ui renders the interactive terminal screens: authentication,
// groups list, group detail and expense entry. Screens query through the
// cached service layer and re-render when their cache entries change, so a
// successful mutation is reflected without a manual refresh.
package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/splitsmart/splitsmart-go/internal/domain"
	"github.com/splitsmart/splitsmart-go/internal/infra/observability"
	"github.com/splitsmart/splitsmart-go/internal/service"
)

// errAuthExpired unwinds navigation back to the login screen. It is the
// terminal counterpart of redirecting to the unauthenticated flow.
var errAuthExpired = errors.New("authentication expired")

// errQuit unwinds navigation out of the application.
var errQuit = errors.New("quit")

// UI drives the screen loop over a line-based terminal.
type UI struct {
	session *service.Session
	app     *service.App
	metrics *observability.Metrics
	logger  *zap.Logger

	in  *bufio.Scanner
	out io.Writer
}

// New creates the UI over the given input and output streams.
func New(session *service.Session, app *service.App, metrics *observability.Metrics, logger *zap.Logger, in io.Reader, out io.Writer) *UI {
	return &UI{
		session: session,
		app:     app,
		metrics: metrics,
		logger:  logger,
		in:      bufio.NewScanner(in),
		out:     out,
	}
}

// Run is the top-level navigation loop. It returns when the user quits or
// input is exhausted.
func (u *UI) Run(ctx context.Context) error {
	u.printf("SplitSmart\n")

	if u.session.Restore(ctx) {
		if user := u.session.User(); user != nil {
			u.printf("Welcome back, %s.\n", user.FullName)
		}
	}

	for {
		if !u.session.Authenticated() {
			if err := u.runAuth(ctx); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				return err
			}
			continue
		}

		err := u.runGroups(ctx)
		switch {
		case err == nil:
			continue
		case errors.Is(err, errQuit):
			return nil
		case errors.Is(err, errAuthExpired):
			u.printf("Your session has expired. Please sign in again.\n")
			if err := u.session.Logout(); err != nil {
				u.logger.Warn("logout after expiry failed", zap.Error(err))
			}
		default:
			return err
		}
	}
}

func (u *UI) printf(format string, args ...any) {
	fmt.Fprintf(u.out, format, args...)
}

// prompt reads one trimmed line, returning false when input is exhausted.
func (u *UI) prompt(label string) (string, bool) {
	u.printf("%s ", label)
	if !u.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(u.in.Text()), true
}

// notice prints a dismissible one-line error message for a failed action.
func (u *UI) notice(err error) {
	u.printf("! %s\n", messageFor(err))
}

// messageFor unwraps an error into the single human-readable string shown
// to the user.
func messageFor(err error) string {
	var validation *domain.ErrValidation
	var invalidAmount *domain.ErrInvalidAmount
	var emptyMembers *domain.ErrEmptyMemberSet
	var apiErr *domain.ErrAPI
	var netErr *domain.ErrNetwork
	var circuitOpen *domain.ErrCircuitOpen

	switch {
	case errors.As(err, &validation):
		return validation.Message
	case errors.As(err, &invalidAmount):
		return "Please enter a valid positive amount."
	case errors.As(err, &emptyMembers):
		return "This group has no members to split between."
	case errors.As(err, &apiErr):
		return apiErr.Message()
	case errors.As(err, &netErr):
		return "Network error. Check your connection and try again."
	case errors.As(err, &circuitOpen):
		return "The server is unreachable right now. Try again in a moment."
	default:
		return err.Error()
	}
}

// authFailed reports whether err should bounce the user to the login flow.
func authFailed(err error) bool {
	var unauthorized *domain.ErrUnauthorized
	return errors.As(err, &unauthorized)
}
