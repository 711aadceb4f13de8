// Package redirect presents verification URLs to the user.
//
// Handlers are composed as an ordered fallback: the first handler that
// succeeds wins, so a browser opener can be tried before printing to the
// console.
package redirect

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pkg/browser"
	log "github.com/sirupsen/logrus"
)

// ErrNoHandler is returned by an empty composite
var ErrNoHandler = errors.New("no redirect handler configured")

// Handler shows a URL to the user
type Handler interface {
	Redirect(ctx context.Context, url string) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, url string) error

// Redirect calls f
func (f HandlerFunc) Redirect(ctx context.Context, url string) error {
	return f(ctx, url)
}

// Rewriter transforms a URL before it is shown
type Rewriter interface {
	Apply(string) string
}

// Composite tries handlers in order and stops at the first success
func Composite(handlers ...Handler) Handler {
	return HandlerFunc(func(ctx context.Context, url string) error {
		if len(handlers) == 0 {
			return ErrNoHandler
		}

		var errs []error
		for _, h := range handlers {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := h.Redirect(ctx, url)
			if err == nil {
				return nil
			}
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})
}

// openURL is swapped in tests
var openURL = browser.OpenURL

func init() {
	// pkg/browser echoes the launcher's output to stdout by default
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
}

// Browser opens the URL in the user's default browser
func Browser() Handler {
	return HandlerFunc(func(_ context.Context, url string) error {
		if err := openURL(url); err != nil {
			return fmt.Errorf("opening browser: %w", err)
		}
		return nil
	})
}

// Console prints the URL to w, applying rw first when it is non-nil
func Console(w io.Writer, rw Rewriter) Handler {
	return HandlerFunc(func(_ context.Context, url string) error {
		if rw != nil {
			url = rw.Apply(url)
		}
		if _, err := fmt.Fprintf(w, "Please open this URL to authenticate: %s\n", url); err != nil {
			return fmt.Errorf("writing verification URL: %w", err)
		}
		return nil
	})
}

// Log emits the URL as a structured log entry
func Log(logger log.FieldLogger) Handler {
	return HandlerFunc(func(_ context.Context, url string) error {
		logger.WithField("verification_uri", url).Info("Open the verification URL in a browser to authenticate")
		return nil
	})
}
