package onvif

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"time"
)

// ServiceClient issues ONVIF operations against one service endpoint.
// Every operation returns either a typed response or an error.
type ServiceClient interface {
	Endpoint() *url.URL
	GetServices(ctx context.Context) ([]ServiceEndpoint, error)
	GetProfiles(ctx context.Context) ([]MediaProfile, error)
	GetStreamURI(ctx context.Context, req StreamRequest) (string, error)
}

// Connector builds service clients for device endpoints
type Connector interface {
	Connect(endpoint *url.URL, creds *Credentials) ServiceClient
}

// Client is a SOAP client bound to a single service endpoint
type Client struct {
	endpoint   *url.URL
	creds      *Credentials
	httpClient *http.Client
}

// NewClient creates a new ONVIF client with credentials
func NewClient(endpoint *url.URL, creds *Credentials) *Client {
	return NewClientWithHTTPClient(endpoint, creds, &http.Client{Timeout: DefaultRequestTimeout})
}

// NewClientWithHTTPClient creates a new ONVIF client using a custom HTTP client
func NewClientWithHTTPClient(endpoint *url.URL, creds *Credentials, httpClient *http.Client) *Client {
	return &Client{
		endpoint:   endpoint,
		creds:      creds,
		httpClient: httpClient,
	}
}

// Endpoint returns the service URI the client talks to
func (c *Client) Endpoint() *url.URL {
	return c.endpoint
}

// HTTPConnector creates SOAP clients sharing one HTTP client
type HTTPConnector struct {
	httpClient *http.Client
}

// NewHTTPConnector creates a connector with a request timeout.
// insecureTLS skips certificate verification, which most cameras need for https.
func NewHTTPConnector(timeout time.Duration, insecureTLS bool) *HTTPConnector {
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}

	client := &http.Client{Timeout: timeout}
	if insecureTLS {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		client.Transport = transport
	}
	return NewHTTPConnectorWithClient(client)
}

// NewHTTPConnectorWithClient creates a connector around an existing HTTP client
func NewHTTPConnectorWithClient(httpClient *http.Client) *HTTPConnector {
	return &HTTPConnector{httpClient: httpClient}
}

// Connect implements Connector
func (hc *HTTPConnector) Connect(endpoint *url.URL, creds *Credentials) ServiceClient {
	return NewClientWithHTTPClient(endpoint, creds, hc.httpClient)
}
