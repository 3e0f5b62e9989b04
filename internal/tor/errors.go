package tor

import "errors"

// Sentinel errors for proxy routing.
//
// Design decision: Callers match these with errors.Is instead of inspecting
// dial errors because:
//  1. The crawl command must tell "nothing listening" from "wrong protocol"
//     to print a useful hint before any page is fetched
//  2. Timeouts surface differently on each platform, and ProxyStatus folds
//     them into one value
var (
	// ErrProxyNotSOCKS5 is returned when the proxy answers but does not speak
	// unauthenticated SOCKS5.
	ErrProxyNotSOCKS5 = errors.New("proxy is not an unauthenticated SOCKS5 proxy")

	// ErrProxyCannotConnect is returned when no TCP connection to the proxy
	// can be made.
	ErrProxyCannotConnect = errors.New("cannot connect to SOCKS5 proxy")

	// ErrProxyTimeout is returned when the proxy does not answer in time.
	ErrProxyTimeout = errors.New("timeout connecting to SOCKS5 proxy")

	// ErrInvalidProxyAddress is returned for addresses not in "host:port" form.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrNotRunning is returned when the embedded Tor daemon has not been started.
	ErrNotRunning = errors.New("embedded Tor daemon is not running")
)

// ProxyStatus is the outcome of Client.CheckConnection.
//
// A status is a value rather than an error so that tests and logs can show
// it directly; Error converts it to the matching sentinel when the caller
// needs to fail.
type ProxyStatus int

const (
	// ProxyStatusOK means the proxy completed a SOCKS5 exchange.
	ProxyStatusOK ProxyStatus = iota
	// ProxyStatusWrongType means something answered that is not SOCKS5.
	ProxyStatusWrongType
	// ProxyStatusCannotConnect means the TCP connection failed.
	ProxyStatusCannotConnect
	// ProxyStatusTimeout means the proxy did not answer in time.
	ProxyStatusTimeout
)

// String returns a short description of the status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type (not SOCKS5)"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error returns the error for this status, or nil if OK.
func (s ProxyStatus) Error() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusWrongType:
		return ErrProxyNotSOCKS5
	case ProxyStatusCannotConnect:
		return ErrProxyCannotConnect
	case ProxyStatusTimeout:
		return ErrProxyTimeout
	default:
		return errors.New("unknown proxy status")
	}
}
