package onvif

import (
	"context"
	"net/url"
	"strings"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

// Service namespaces advertised in GetServices
const (
	NamespaceDevice    = "http://www.onvif.org/ver10/device/wsdl"
	NamespaceEvents    = "http://www.onvif.org/ver10/events/wsdl"
	NamespaceDeviceIO  = "http://www.onvif.org/ver10/deviceIO/wsdl"
	NamespaceMedia     = "http://www.onvif.org/ver10/media/wsdl"
	NamespaceMedia2    = "http://www.onvif.org/ver20/media/wsdl"
	NamespaceImaging   = "http://www.onvif.org/ver20/imaging/wsdl"
	NamespacePTZ       = "http://www.onvif.org/ver20/ptz/wsdl"
	NamespaceAnalytics = "http://www.onvif.org/ver20/analytics/wsdl"
)

// Role identifies a sub-service of a device
type Role int

const (
	RoleUnknown Role = iota
	RoleDeviceMgmt
	RoleEvent
	RoleDeviceIO
	RoleMedia
	RoleMedia2
	RoleImaging
	RolePTZ
	RoleAnalytics
)

func (r Role) String() string {
	switch r {
	case RoleDeviceMgmt:
		return "devicemgmt"
	case RoleEvent:
		return "event"
	case RoleDeviceIO:
		return "deviceio"
	case RoleMedia:
		return "media"
	case RoleMedia2:
		return "media2"
	case RoleImaging:
		return "imaging"
	case RolePTZ:
		return "ptz"
	case RoleAnalytics:
		return "analytics"
	default:
		return "unknown"
	}
}

// RoleForNamespace maps a service namespace to its role
func RoleForNamespace(namespace string) Role {
	switch namespace {
	case NamespaceDevice:
		return RoleDeviceMgmt
	case NamespaceEvents:
		return RoleEvent
	case NamespaceDeviceIO:
		return RoleDeviceIO
	case NamespaceMedia:
		return RoleMedia
	case NamespaceMedia2:
		return RoleMedia2
	case NamespaceImaging:
		return RoleImaging
	case NamespacePTZ:
		return RolePTZ
	case NamespaceAnalytics:
		return RoleAnalytics
	default:
		return RoleUnknown
	}
}

// ClientSet holds the clients of one device. It is built per device and
// never shared between devices.
type ClientSet struct {
	DeviceMgmt ServiceClient
	clients    map[Role]ServiceClient
}

// Client returns the client for a role, if the device advertised it
func (cs *ClientSet) Client(role Role) (ServiceClient, bool) {
	if role == RoleDeviceMgmt {
		return cs.DeviceMgmt, cs.DeviceMgmt != nil
	}
	client, ok := cs.clients[role]
	return client, ok
}

// Media returns the media (ver10) client or nil
func (cs *ClientSet) Media() ServiceClient {
	client, _ := cs.Client(RoleMedia)
	return client
}

// Roles lists the optional roles present in the set
func (cs *ClientSet) Roles() []Role {
	var roles []Role
	for role := RoleEvent; role <= RoleAnalytics; role++ {
		if _, ok := cs.clients[role]; ok {
			roles = append(roles, role)
		}
	}
	return roles
}

// NewClientSet queries the service catalog of the device at base and builds
// one client per recognized service. Every advertised service must live under
// base; the device management entry must match base + servicePath.
func NewClientSet(ctx context.Context, connector Connector, base *url.URL, creds *Credentials, servicePath string, logger zerolog.Logger) (*ClientSet, error) {
	devicemgmtURI := base.ResolveReference(&url.URL{Path: servicePath})
	out := &ClientSet{
		DeviceMgmt: connector.Connect(devicemgmtURI, creds),
		clients:    make(map[Role]ServiceClient),
	}

	services, err := out.DeviceMgmt.GetServices(ctx)
	if err != nil {
		return nil, errors.Annotatef(err, "getting services from %s", devicemgmtURI)
	}

	for _, service := range services {
		serviceURL, err := url.Parse(service.XAddr)
		if err != nil {
			return nil, errors.Annotatef(err, "parsing service URI %q", service.XAddr)
		}
		if !strings.HasPrefix(serviceURL.String(), base.String()) {
			return nil, errors.NotValidf("service URI %s outside base URI %s", serviceURL, base)
		}

		switch role := RoleForNamespace(service.Namespace); role {
		case RoleDeviceMgmt:
			if serviceURL.String() != devicemgmtURI.String() {
				return nil, errors.NotValidf("advertised device mgmt URI %s, expected %s", serviceURL, devicemgmtURI)
			}
		case RoleEvent, RoleDeviceIO, RoleMedia, RoleMedia2, RoleImaging, RolePTZ, RoleAnalytics:
			out.clients[role] = connector.Connect(serviceURL, creds)
		case RoleUnknown:
			logger.Debug().
				Str("namespace", service.Namespace).
				Str("xaddr", service.XAddr).
				Msg("ignoring unknown service")
		}
	}

	return out, nil
}
