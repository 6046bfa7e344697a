package netutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// NewTransport returns an HTTP transport tuned for a long-lived polling
// workload against a single cloud endpoint.
func NewTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout:   10 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
	}
}

// NewHTTPClient creates an HTTP client with the tuned transport. Timed-out
// calls surface as transient failures to the caller.
func NewHTTPClient(timeout time.Duration, logger *logrus.Logger) *http.Client {
	logger.WithField("timeout", timeout).Debug("HTTP client ready")
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(),
	}
}
