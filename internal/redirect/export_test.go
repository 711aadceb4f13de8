package redirect

import "testing"

// StubOpener replaces the browser launcher for the duration of a test
func StubOpener(t testing.TB, open func(url string) error) {
	t.Helper()
	orig := openURL
	openURL = open
	t.Cleanup(func() { openURL = orig })
}
