package onvif

import (
	"context"

	"github.com/juju/errors"
)

const (
	actionGetServices          = NamespaceDevice + "/GetServices"
	actionGetDeviceInformation = NamespaceDevice + "/GetDeviceInformation"
)

// GetServices fetches the service catalog of the device
func (c *Client) GetServices(ctx context.Context) ([]ServiceEndpoint, error) {
	req := newRequest("tds", NamespaceDevice, "GetServices")
	req.CreateElement("tds:IncludeCapability").SetText("false")

	body, err := c.call(ctx, actionGetServices, req)
	if err != nil {
		return nil, errors.Trace(err)
	}

	resp := body.FindElement("./GetServicesResponse")
	if resp == nil {
		return nil, errors.NotFoundf("GetServicesResponse")
	}

	var services []ServiceEndpoint
	for _, svc := range resp.FindElements("./Service") {
		services = append(services, ServiceEndpoint{
			Namespace: childText(svc, "./Namespace"),
			XAddr:     childText(svc, "./XAddr"),
		})
	}
	return services, nil
}

// GetDeviceInformation fetches manufacturer, model and firmware details
func (c *Client) GetDeviceInformation(ctx context.Context) (*DeviceInfo, error) {
	body, err := c.call(ctx, actionGetDeviceInformation, newRequest("tds", NamespaceDevice, "GetDeviceInformation"))
	if err != nil {
		return nil, errors.Trace(err)
	}

	resp := body.FindElement("./GetDeviceInformationResponse")
	if resp == nil {
		return nil, errors.NotFoundf("GetDeviceInformationResponse")
	}

	return &DeviceInfo{
		Manufacturer:    childText(resp, "./Manufacturer"),
		Model:           childText(resp, "./Model"),
		FirmwareVersion: childText(resp, "./FirmwareVersion"),
		SerialNumber:    childText(resp, "./SerialNumber"),
		HardwareId:      childText(resp, "./HardwareId"),
	}, nil
}

// DisplayName returns the best available name for a device
func (info *DeviceInfo) DisplayName(device Device) string {
	// Priority: Manufacturer + Model > Discovery Name > Hardware > Address
	if info != nil && info.Manufacturer != "" && info.Model != "" {
		return info.Manufacturer + " " + info.Model
	}
	if device.Name != "" {
		return device.Name
	}
	if device.Hardware != "" {
		return device.Hardware
	}
	return device.Address
}
