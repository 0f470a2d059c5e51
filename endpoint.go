package onvif

import (
	"bytes"
	"net"
	"net/url"
	"strings"
)

// SecureScheme is the only scheme a device endpoint is accepted with
const SecureScheme = "https"

// subnetPrefixLen is the number of leading address bytes that must match
const subnetPrefixLen = 3

// SelectEndpoint returns the first https URL whose host is on the same /24
// network as listen. Order of urls is significant; the first match wins.
func SelectEndpoint(urls []*url.URL, listen net.IP) (*url.URL, bool) {
	for _, u := range urls {
		if u == nil || u.Scheme != SecureScheme {
			continue
		}
		if sameSubnet(net.ParseIP(u.Hostname()), listen) {
			return u, true
		}
	}
	return nil, false
}

// sameSubnet compares the first three octets of two addresses of the same family
func sameSubnet(host, listen net.IP) bool {
	if host == nil || listen == nil {
		return false
	}

	host4, listen4 := host.To4(), listen.To4()
	switch {
	case host4 != nil && listen4 != nil:
		return bytes.Equal(host4[:subnetPrefixLen], listen4[:subnetPrefixLen])
	case host4 == nil && listen4 == nil:
		return bytes.Equal(host.To16()[:subnetPrefixLen], listen.To16()[:subnetPrefixLen])
	default:
		return false
	}
}

// DeviceBaseURI strips the device service path from an advertised endpoint,
// giving the URI every service of the device must live under
func DeviceBaseURI(endpoint *url.URL, servicePath string) *url.URL {
	base := *endpoint
	base.RawQuery = ""
	base.Fragment = ""
	if trimmed, ok := strings.CutSuffix(base.Path, servicePath); ok {
		base.Path = trimmed
		base.RawPath = ""
	}
	if base.Path == "" {
		base.Path = "/"
	}
	return &base
}
