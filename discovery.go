package onvif

import (
	"context"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/gofrs/uuid"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
)

const (
	nsAddressing = "http://schemas.xmlsoap.org/ws/2004/08/addressing"
	nsDiscovery  = "http://schemas.xmlsoap.org/ws/2005/04/discovery"
	nsNetwork    = "http://www.onvif.org/ver10/network/wsdl"

	discoveryTo  = "urn:schemas-xmlsoap-org:ws:2005:04:discovery"
	multicastTTL = 1
)

// Discoverer produces the devices seen on the network. The channel is closed
// when discovery ends or ctx is done.
type Discoverer interface {
	Discover(ctx context.Context) (<-chan Device, error)
}

// WSDiscovery finds NetworkVideoTransmitters with a WS-Discovery probe
type WSDiscovery struct {
	// Local address to send the probe from; also selects the multicast interface
	ListenAddr    net.IP
	MulticastAddr string
	// How long to wait for ProbeMatches
	Duration time.Duration
	Logger   zerolog.Logger
}

// Discover sends one probe and streams every distinct responder
func (d *WSDiscovery) Discover(ctx context.Context) (<-chan Device, error) {
	multicastAddr := d.MulticastAddr
	if multicastAddr == "" {
		multicastAddr = DefaultMulticastAddr
	}
	duration := d.Duration
	if duration == 0 {
		duration = DefaultDiscoveryTimeout
	}
	listen := d.ListenAddr
	if listen == nil {
		listen = net.IPv4zero
	}

	group, err := net.ResolveUDPAddr("udp4", multicastAddr)
	if err != nil {
		return nil, errors.Annotate(err, "resolving multicast address")
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: listen, Port: 0})
	if err != nil {
		return nil, errors.Annotatef(err, "listening on %s", listen)
	}

	pc := ipv4.NewPacketConn(conn)
	if ifi := interfaceByIP(listen); ifi != nil {
		if err := pc.SetMulticastInterface(ifi); err != nil {
			d.Logger.Debug().Err(err).Str("interface", ifi.Name).Msg("failed to set multicast interface")
		}
	}
	if err := pc.SetMulticastTTL(multicastTTL); err != nil {
		d.Logger.Debug().Err(err).Msg("failed to set multicast TTL")
	}

	probe, err := buildProbe()
	if err != nil {
		conn.Close()
		return nil, errors.Trace(err)
	}
	if _, err := conn.WriteToUDP(probe, group); err != nil {
		conn.Close()
		return nil, errors.Annotate(err, "sending probe")
	}
	d.Logger.Debug().Str("listen", listen.String()).Str("group", group.String()).Msg("probe sent")

	devices := make(chan Device)
	go d.receive(ctx, conn, duration, devices)
	return devices, nil
}

// receive reads ProbeMatches until the deadline and forwards new devices
func (d *WSDiscovery) receive(ctx context.Context, conn *net.UDPConn, duration time.Duration, out chan<- Device) {
	defer close(out)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	seen := make(map[string]bool)
	buffer := make([]byte, 65536)

	for {
		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			d.Logger.Debug().Err(err).Msg("discovery read failed")
			continue
		}

		devices, err := parseProbeMatches(buffer[:n])
		if err != nil {
			d.Logger.Debug().Err(err).Str("from", from.String()).Msg("ignoring malformed probe response")
			continue
		}

		for _, device := range devices {
			key := device.Address
			if key == "" {
				key = from.IP.String()
			}
			if seen[key] {
				continue
			}
			seen[key] = true

			select {
			case out <- device:
			case <-ctx.Done():
				return
			}
		}
	}
}

// buildProbe creates a Probe for dn:NetworkVideoTransmitter
func buildProbe() ([]byte, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, errors.Annotate(err, "generating message id")
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement("s:Envelope")
	env.CreateAttr("xmlns:s", nsSOAP)
	env.CreateAttr("xmlns:a", nsAddressing)
	env.CreateAttr("xmlns:d", nsDiscovery)
	env.CreateAttr("xmlns:dn", nsNetwork)

	header := env.CreateElement("s:Header")
	header.CreateElement("a:Action").SetText(nsDiscovery + "/Probe")
	header.CreateElement("a:MessageID").SetText("uuid:" + id.String())
	header.CreateElement("a:To").SetText(discoveryTo)

	probe := env.CreateElement("s:Body").CreateElement("d:Probe")
	probe.CreateElement("d:Types").SetText("dn:NetworkVideoTransmitter")

	return doc.WriteToBytes()
}

// parseProbeMatches extracts devices from a ProbeMatches message
func parseProbeMatches(data []byte) ([]Device, error) {
	body, err := parseEnvelope(data)
	if err != nil {
		return nil, errors.Trace(err)
	}

	var devices []Device
	for _, match := range body.FindElements("./ProbeMatches/ProbeMatch") {
		device := Device{
			Address: childText(match, "./EndpointReference/Address"),
		}
		device.Name, device.Location, device.Hardware = parseScopes(childText(match, "./Scopes"))

		for _, xaddr := range strings.Fields(childText(match, "./XAddrs")) {
			u, err := url.Parse(xaddr)
			if err != nil {
				continue
			}
			device.URLs = append(device.URLs, u)
		}
		devices = append(devices, device)
	}
	return devices, nil
}

func parseScopes(scopes string) (name, location, hardware string) {
	for _, scope := range strings.Fields(scopes) {
		if value, ok := strings.CutPrefix(scope, "onvif://www.onvif.org/name/"); ok {
			name = scopeValue(value)
		} else if value, ok := strings.CutPrefix(scope, "onvif://www.onvif.org/location/"); ok {
			location = scopeValue(value)
		} else if value, ok := strings.CutPrefix(scope, "onvif://www.onvif.org/hardware/"); ok {
			hardware = scopeValue(value)
		}
	}
	return
}

func scopeValue(value string) string {
	if unescaped, err := url.PathUnescape(value); err == nil {
		value = unescaped
	}
	return strings.ReplaceAll(value, "_", " ")
}

// interfaceByIP returns the interface owning ip, or nil
func interfaceByIP(ip net.IP) *net.Interface {
	if ip == nil || ip.IsUnspecified() {
		return nil
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.Equal(ip) {
				return &ifaces[i]
			}
		}
	}
	return nil
}
