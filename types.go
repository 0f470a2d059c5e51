// Package onvif locates ONVIF cameras and resolves ready-to-use RTSP stream links
package onvif

import (
	"net/url"
	"time"
)

// Device is a camera seen on the network by a Discoverer
type Device struct {
	// Endpoint reference address (usually urn:uuid:...)
	Address string
	// Candidate service URLs in the order the device advertised them
	URLs []*url.URL

	// Parsed from discovery scopes
	Name     string
	Hardware string
	Location string
}

// Credentials is a username/password pair used for every request to a device.
// A nil *Credentials means anonymous access.
type Credentials struct {
	Username string
	Password string
}

// ServiceEndpoint is one entry of a device's service catalog
type ServiceEndpoint struct {
	Namespace string
	XAddr     string
}

// MediaProfile is a media profile as reported by GetProfiles
type MediaProfile struct {
	Token        string
	Name         string
	VideoEncoder *VideoEncoderConfig // nil when the profile carries no video encoder
}

// VideoEncoderConfig represents the video encoder configuration of a profile
type VideoEncoderConfig struct {
	Encoding string
	Width    int
	Height   int
}

// StreamType is the stream setup requested from GetStreamUri
type StreamType string

const (
	StreamRTPUnicast   StreamType = "RTP-Unicast"
	StreamRTPMulticast StreamType = "RTP-Multicast"
)

// TransportProtocol is the transport requested from GetStreamUri
type TransportProtocol string

const (
	TransportUDP  TransportProtocol = "UDP"
	TransportTCP  TransportProtocol = "TCP"
	TransportRTSP TransportProtocol = "RTSP"
	TransportHTTP TransportProtocol = "HTTP"
)

// StreamRequest asks a media service for the URI of one profile
type StreamRequest struct {
	ProfileToken string
	Stream       StreamType
	Protocol     TransportProtocol
}

// NewStreamRequest returns a unicast RTP over RTSP request for a profile
func NewStreamRequest(profileToken string) StreamRequest {
	return StreamRequest{
		ProfileToken: profileToken,
		Stream:       StreamRTPUnicast,
		Protocol:     TransportRTSP,
	}
}

// StreamOutcome is the result of one GetStreamUri request
type StreamOutcome struct {
	Index int // position of the profile in the catalog
	Token string
	URI   string
	Err   error
}

// VideoSpec describes the encoded video of a stream
type VideoSpec struct {
	Encoding string
	Width    int
	Height   int
}

// StreamSpec joins a profile with its resolved media URI
type StreamSpec struct {
	Name     string
	MediaURI string
	Video    VideoSpec
}

// DeviceInfo is the result of GetDeviceInformation
type DeviceInfo struct {
	Manufacturer    string
	Model           string
	FirmwareVersion string
	SerialNumber    string
	HardwareId      string
}

// Default configuration
const (
	DefaultMulticastAddr        = "239.255.255.250:3702"
	DefaultDiscoveryTimeout     = 5 * time.Second
	DefaultRequestTimeout       = 10 * time.Second
	DefaultListenAddr           = "192.168.0.1"
	DefaultServicePath          = "onvif/device_service"
	DefaultCodec                = "h264"
	DefaultMaxConcurrentDevices = 100
	DefaultProfileConcurrency   = 4
)
