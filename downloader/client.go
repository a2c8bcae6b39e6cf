package downloader

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
)

// newTransport builds a connection pool, optionally going through a proxy. Supported proxy schemes are http, https,
// socks5 and socks5h.
func newTransport(options Options) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          options.MaxIdleConns,
		MaxIdleConnsPerHost:   options.MaxIdleConnsPerHost,
		MaxConnsPerHost:       options.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if options.Proxy != "" {
		proxyURL, err := url.Parse(options.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", options.Proxy, err)
		}
		switch proxyURL.Scheme {
		case "http", "https":
			transport.Proxy = http.ProxyURL(proxyURL)
		case "socks5", "socks5h":
			proxyDialer, err := proxy.FromURL(proxyURL, dialer)
			if err != nil {
				return nil, err
			}
			if contextDialer, ok := proxyDialer.(proxy.ContextDialer); ok {
				transport.DialContext = contextDialer.DialContext
			} else {
				transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
					return proxyDialer.Dial(network, addr)
				}
			}
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedProxy, proxyURL.Scheme)
		}
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, err
	}
	return transport, nil
}
