// Package plesk manages mail aliases through the Plesk XML API agent endpoint.
package plesk

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
)

const (
	// DefaultPort is the port the Plesk agent listens on.
	DefaultPort = 8443
	// AgentPath is the endpoint every packet is posted to.
	AgentPath = "/enterprise/control/agent.php"
)

// Config holds the connection parameters of a Client.
type Config struct {
	Host string
	Port int
	Auth Auth
	// TLS supplies trust roots and server name overrides. Nil uses the
	// system pool. Verification cannot be disabled.
	TLS *tls.Config
}

// Client posts raw packets to the Plesk agent endpoint. It knows nothing
// about the packets it carries.
type Client struct {
	endpoint   string
	auth       Auth
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient validates cfg and returns a client for it.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("plesk client: host is required")
	}
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("plesk client: invalid port %d", cfg.Port)
	}
	if cfg.Auth == nil {
		return nil, fmt.Errorf("plesk client: no authentication configured")
	}

	var tlsConfig *tls.Config
	if cfg.TLS != nil {
		if cfg.TLS.InsecureSkipVerify {
			return nil, fmt.Errorf("plesk client: %w", ErrInsecureTLS)
		}
		tlsConfig = cfg.TLS.Clone()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	// One connection per request, closed once the response is read.
	transport.DisableKeepAlives = true

	host := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	return &Client{
		endpoint:   "https://" + host + AgentPath,
		auth:       cfg.Auth,
		httpClient: &http.Client{Transport: transport},
		logger:     logger.With().Str("component", "plesk").Str("host", host).Logger(),
	}, nil
}

// Send posts one packet and returns the unprocessed response body.
func (c *Client) Send(ctx context.Context, packet []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(packet))
	if err != nil {
		return nil, fmt.Errorf("create agent request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml")
	req.Header["HTTP_PRETTY_PRINT"] = []string{"TRUE"}
	c.auth.apply(req.Header)

	c.logger.Debug().Int("bytes", len(packet)).Msg("sending packet")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post packet: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read agent response: %w", err)
	}

	c.logger.Debug().Int("status", resp.StatusCode).Int("bytes", len(body)).Msg("received response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("post packet: status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
