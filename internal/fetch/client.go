package fetch

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// DialContextFunc dials a network connection. tor.Client.DialContext satisfies it.
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// ClientOptions configures NewHTTPClient.
type ClientOptions struct {
	// Timeout bounds one request including the body read.
	Timeout time.Duration

	// Dial replaces the default dialer, e.g. to route through a SOCKS5 proxy.
	Dial DialContextFunc

	// InsecureSkipVerify disables TLS certificate verification. Targets in
	// staging environments often use self-signed certificates.
	InsecureSkipVerify bool
}

// NewHTTPClient builds the client used by HTTPFetcher and the robots reader.
// It keeps cookies for the duration of the crawl and follows at most 10 redirects.
func NewHTTPClient(opts ClientOptions) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // DefaultTransport is *http.Transport
	transport.MaxIdleConnsPerHost = 4
	transport.IdleConnTimeout = 30 * time.Second
	if opts.Dial != nil {
		transport.Proxy = nil
		transport.DialContext = opts.Dial
	}
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // Explicitly requested by the user
		}
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	return &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}
