package onvif

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const probeMatchesTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://www.w3.org/2003/05/soap-envelope"
	xmlns:wsa="http://schemas.xmlsoap.org/ws/2004/08/addressing"
	xmlns:d="http://schemas.xmlsoap.org/ws/2005/04/discovery"
	xmlns:dn="http://www.onvif.org/ver10/network/wsdl">
<SOAP-ENV:Header>
	<wsa:Action>http://schemas.xmlsoap.org/ws/2005/04/discovery/ProbeMatches</wsa:Action>
</SOAP-ENV:Header>
<SOAP-ENV:Body>
<d:ProbeMatches>
	<d:ProbeMatch>
		<wsa:EndpointReference><wsa:Address>ADDRESS</wsa:Address></wsa:EndpointReference>
		<d:Types>dn:NetworkVideoTransmitter</d:Types>
		<d:Scopes>onvif://www.onvif.org/type/video_encoder onvif://www.onvif.org/name/Front_Door onvif://www.onvif.org/hardware/DS-2CD2043 onvif://www.onvif.org/location/country/china%20west</d:Scopes>
		<d:XAddrs>XADDRS</d:XAddrs>
		<d:MetadataVersion>1</d:MetadataVersion>
	</d:ProbeMatch>
</d:ProbeMatches>
</SOAP-ENV:Body>
</SOAP-ENV:Envelope>`

func probeMatches(address, xaddrs string) []byte {
	return []byte(strings.NewReplacer("ADDRESS", address, "XADDRS", xaddrs).Replace(probeMatchesTemplate))
}

func TestParseProbeMatches(t *testing.T) {
	data := probeMatches("urn:uuid:4d454930-0000-1000-8000-bcbac2a1b2c3",
		"http://192.168.0.64/onvif/device_service https://192.168.0.64/onvif/device_service http://[fe80::1/bad")

	devices, err := parseProbeMatches(data)
	require.NoError(t, err)
	require.Len(t, devices, 1)

	device := devices[0]
	assert.Equal(t, "urn:uuid:4d454930-0000-1000-8000-bcbac2a1b2c3", device.Address)
	assert.Equal(t, "Front Door", device.Name)
	assert.Equal(t, "DS-2CD2043", device.Hardware)
	assert.Equal(t, "country/china west", device.Location)

	require.Len(t, device.URLs, 2)
	assert.Equal(t, "http://192.168.0.64/onvif/device_service", device.URLs[0].String())
	assert.Equal(t, "https://192.168.0.64/onvif/device_service", device.URLs[1].String())
}

func TestParseProbeMatchesRejectsGarbage(t *testing.T) {
	_, err := parseProbeMatches([]byte("<Probe/>"))
	assert.Error(t, err)
}

func TestBuildProbe(t *testing.T) {
	data, err := buildProbe()
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(data))

	id, ok := strings.CutPrefix(childText(&doc.Element, "./Envelope/Header/MessageID"), "uuid:")
	require.True(t, ok)
	_, err = uuid.FromString(id)
	assert.NoError(t, err)

	assert.Equal(t, nsDiscovery+"/Probe", childText(&doc.Element, "./Envelope/Header/Action"))
	assert.Equal(t, "dn:NetworkVideoTransmitter", childText(&doc.Element, "./Envelope/Body/Probe/Types"))

	other, err := buildProbe()
	require.NoError(t, err)
	assert.NotEqual(t, data, other)
}

// respondToProbe answers every probe on conn with the given messages
func respondToProbe(t *testing.T, conn *net.UDPConn, replies ...[]byte) {
	t.Helper()
	buffer := make([]byte, 65536)
	for {
		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			return
		}
		if !strings.Contains(string(buffer[:n]), "NetworkVideoTransmitter") {
			continue
		}
		for _, reply := range replies {
			if _, err := conn.WriteToUDP(reply, from); err != nil {
				return
			}
		}
	}
}

func TestWSDiscovery(t *testing.T) {
	responder, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer responder.Close()

	go respondToProbe(t, responder,
		probeMatches("urn:uuid:cam-1", "https://192.168.0.64/onvif/device_service"),
		// cameras often answer more than once
		probeMatches("urn:uuid:cam-1", "https://192.168.0.64/onvif/device_service"),
		[]byte("garbage"),
		probeMatches("urn:uuid:cam-2", "https://192.168.0.65/onvif/device_service"),
	)

	d := &WSDiscovery{
		ListenAddr:    net.IPv4(127, 0, 0, 1),
		MulticastAddr: responder.LocalAddr().String(),
		Duration:      300 * time.Millisecond,
		Logger:        testLogger(t),
	}

	devices, err := d.Discover(context.Background())
	require.NoError(t, err)

	var addresses []string
	for device := range devices {
		addresses = append(addresses, device.Address)
	}
	assert.Equal(t, []string{"urn:uuid:cam-1", "urn:uuid:cam-2"}, addresses)
}

func TestWSDiscoveryStopsOnCancel(t *testing.T) {
	d := &WSDiscovery{
		ListenAddr: net.IPv4(127, 0, 0, 1),
		// nothing listens here
		MulticastAddr: "127.0.0.1:9",
		Duration:      time.Minute,
		Logger:        testLogger(t),
	}

	ctx, cancel := context.WithCancel(context.Background())
	devices, err := d.Discover(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-devices:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("discovery did not stop after cancel")
	}
}
