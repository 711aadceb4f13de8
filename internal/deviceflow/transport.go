package deviceflow

import (
	"net/http"
)

// hostTransport overrides the Host header of every outgoing request. It lets
// the client reach a server through a tunnel or proxy whose address differs
// from the hostname the server expects.
type hostTransport struct {
	host string
	base http.RoundTripper
}

func (t *hostTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Host = t.host
	return t.base.RoundTrip(r)
}

// newHTTPClient derives the client used for all endpoint calls
func newHTTPClient(base *http.Client, host string) *http.Client {
	hc := &http.Client{}
	if base != nil {
		*hc = *base
	}

	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	if host != "" {
		rt := hc.Transport
		if rt == nil {
			rt = http.DefaultTransport
		}
		hc.Transport = &hostTransport{host: host, base: rt}
	}

	return hc
}
