package onvif

import (
	"context"
	"net/url"
	"sync"
	"testing"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

// stubDevice answers ONVIF operations from memory and records requests
type stubDevice struct {
	services    []ServiceEndpoint
	servicesErr error
	profiles    []MediaProfile
	profilesErr error
	streamURIs  map[string]string
	streamErrs  map[string]error

	// Called at the start of GetServices
	onGetServices func()

	mu          sync.Mutex
	streamCalls []string
}

func (d *stubDevice) streamURICalls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.streamCalls...)
}

type stubClient struct {
	endpoint *url.URL
	device   *stubDevice
}

func (c *stubClient) Endpoint() *url.URL {
	return c.endpoint
}

func (c *stubClient) GetServices(ctx context.Context) ([]ServiceEndpoint, error) {
	if c.device.onGetServices != nil {
		c.device.onGetServices()
	}
	return c.device.services, c.device.servicesErr
}

func (c *stubClient) GetProfiles(ctx context.Context) ([]MediaProfile, error) {
	return c.device.profiles, c.device.profilesErr
}

func (c *stubClient) GetStreamURI(ctx context.Context, req StreamRequest) (string, error) {
	c.device.mu.Lock()
	c.device.streamCalls = append(c.device.streamCalls, req.ProfileToken)
	c.device.mu.Unlock()

	if req.Stream != StreamRTPUnicast || req.Protocol != TransportRTSP {
		return "", errors.NotSupportedf("stream setup %s/%s", req.Stream, req.Protocol)
	}
	if err := c.device.streamErrs[req.ProfileToken]; err != nil {
		return "", err
	}
	uri, ok := c.device.streamURIs[req.ProfileToken]
	if !ok {
		return "", errors.NotFoundf("profile %q", req.ProfileToken)
	}
	return uri, nil
}

// stubConnector routes clients to devices by host
type stubConnector struct {
	devices map[string]*stubDevice

	mu       sync.Mutex
	connects []string
}

func newStubConnector() *stubConnector {
	return &stubConnector{devices: make(map[string]*stubDevice)}
}

func (sc *stubConnector) Connect(endpoint *url.URL, creds *Credentials) ServiceClient {
	sc.mu.Lock()
	sc.connects = append(sc.connects, endpoint.String())
	sc.mu.Unlock()

	device, ok := sc.devices[endpoint.Host]
	if !ok {
		device = &stubDevice{servicesErr: errors.NotFoundf("host %s", endpoint.Host)}
	}
	return &stubClient{endpoint: endpoint, device: device}
}

// mediaDevice is a device at host advertising device management and media
func mediaDevice(host string, profiles ...MediaProfile) *stubDevice {
	d := &stubDevice{
		services: []ServiceEndpoint{
			{Namespace: NamespaceDevice, XAddr: "https://" + host + "/onvif/device_service"},
			{Namespace: NamespaceMedia, XAddr: "https://" + host + "/onvif/media_service"},
		},
		profiles:   profiles,
		streamURIs: make(map[string]string),
		streamErrs: make(map[string]error),
	}
	for _, p := range profiles {
		d.streamURIs[p.Token] = "rtsp://" + host + "/" + p.Token
	}
	return d
}

func h264Profile(token string) MediaProfile {
	return MediaProfile{
		Token:        token,
		Name:         "name_" + token,
		VideoEncoder: &VideoEncoderConfig{Encoding: "H264", Width: 1920, Height: 1080},
	}
}

func mustParseURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	if err != nil {
		t.Fatalf("url.Parse(%q) failed: %v", s, err)
	}
	return u
}

func testLogger(t *testing.T) zerolog.Logger {
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
}
