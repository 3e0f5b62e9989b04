// Package tor routes crawl traffic through a SOCKS5 proxy.
//
// Client wraps golang.org/x/net/proxy for an existing proxy such as a system
// Tor daemon (127.0.0.1:9050). EmbeddedTor starts a private Tor daemon through
// github.com/nao1215/tornago and hands out a Client for it. Client.DialContext
// plugs into fetch.ClientOptions.Dial and Client.ProxyURL into the browser
// renderer.
package tor
