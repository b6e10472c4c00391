package utils

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/logpoison-tool/internal/config"
	"github.com/logpoison-tool/internal/logger"
	"github.com/logpoison-tool/internal/proxy"
)

// NewHTTPClient creates the single reusable HTTP session used for every
// probe, poison and inclusion request. Cookies persist across requests.
func NewHTTPClient(cfg *config.Config, log logger.Logger) (*http.Client, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.RequestTimeout(),
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.Transport.VerifySSL,
			MinVersion:         tls.VersionTLS10,
		},
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableKeepAlives:     false,
		DisableCompression:    false,
	}

	proxyManager, err := proxy.NewManager(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := proxyManager.Apply(transport); err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	client := &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   cfg.RequestTimeout(),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if !cfg.Transport.FollowRedirects {
				return http.ErrUseLastResponse
			}
			if len(via) >= cfg.Transport.MaxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	return client, nil
}

// IsValidURL checks if a URL is an absolute http(s) URL
func IsValidURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return false
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return false
	}

	return true
}

// BuildInclusionURL builds target?param=value. The value is appended
// verbatim so traversal sequences and Windows paths reach the server as typed.
func BuildInclusionURL(target, param, value string) string {
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + param + "=" + value
}

// Quote percent-encodes s the way a shell-friendly URL quoter does:
// everything except unreserved characters and '/' is escaped, and spaces
// become %20 rather than '+'.
func Quote(s string) string {
	escaped := url.QueryEscape(s)
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	return strings.ReplaceAll(escaped, "%2F", "/")
}
