package redirect

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type replaceAll struct{ from, to string }

func (r replaceAll) Apply(s string) string { return strings.ReplaceAll(s, r.from, r.to) }

func recorder(calls *[]string, name string, err error) Handler {
	return HandlerFunc(func(_ context.Context, url string) error {
		*calls = append(*calls, name+":"+url)
		return err
	})
}

func TestComposite(t *testing.T) {
	errBrowser := errors.New("no browser")

	tests := []struct {
		name      string
		errs      []error
		wantCalls []string
		wantErr   bool
	}{
		{
			name:      "first handler succeeds",
			errs:      []error{nil, nil},
			wantCalls: []string{"h0:u"},
		},
		{
			name:      "falls back to second handler",
			errs:      []error{errBrowser, nil},
			wantCalls: []string{"h0:u", "h1:u"},
		},
		{
			name:      "all handlers fail",
			errs:      []error{errBrowser, errBrowser},
			wantCalls: []string{"h0:u", "h1:u"},
			wantErr:   true,
		},
		{
			name:    "no handlers",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			var handlers []Handler
			for i, err := range tt.errs {
				handlers = append(handlers, recorder(&calls, "h"+string(rune('0'+i)), err))
			}

			err := Composite(handlers...).Redirect(context.Background(), "u")
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestCompositeJoinsErrors(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	err := Composite(
		HandlerFunc(func(context.Context, string) error { return errA }),
		HandlerFunc(func(context.Context, string) error { return errB }),
	).Redirect(context.Background(), "u")

	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestCompositeStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls []string
	err := Composite(recorder(&calls, "h0", nil)).Redirect(ctx, "u")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, calls)
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	h := Console(&buf, replaceAll{"https://lakekeeper-trino-proxy", "http://localhost:38191"})

	require.NoError(t, h.Redirect(context.Background(), "https://lakekeeper-trino-proxy/oauth2/token/abc"))
	assert.Equal(t, "Please open this URL to authenticate: http://localhost:38191/oauth2/token/abc\n", buf.String())
}

func TestConsoleWithoutRewriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Console(&buf, nil).Redirect(context.Background(), "http://host/x"))
	assert.Contains(t, buf.String(), "http://host/x")
}

func TestBrowser(t *testing.T) {
	orig := openURL
	t.Cleanup(func() { openURL = orig })

	var opened string
	openURL = func(url string) error {
		opened = url
		return nil
	}
	require.NoError(t, Browser().Redirect(context.Background(), "http://localhost/device"))
	assert.Equal(t, "http://localhost/device", opened)

	openURL = func(string) error { return errors.New("exec: \"xdg-open\": executable file not found") }
	err := Browser().Redirect(context.Background(), "http://localhost/device")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening browser")
}

func TestBrowserFallsBackToConsole(t *testing.T) {
	orig := openURL
	t.Cleanup(func() { openURL = orig })
	openURL = func(string) error { return errors.New("no display") }

	var buf bytes.Buffer
	err := Composite(Browser(), Console(&buf, nil)).Redirect(context.Background(), "http://localhost/device")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "http://localhost/device")
}

func TestLog(t *testing.T) {
	logger, hook := test.NewNullLogger()
	require.NoError(t, Log(logger).Redirect(context.Background(), "http://localhost/device"))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, log.InfoLevel, entry.Level)
	assert.Equal(t, "http://localhost/device", entry.Data["verification_uri"])
}
