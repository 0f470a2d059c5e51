package onvif

import (
	"context"

	"github.com/juju/errors"
)

const (
	actionGetProfiles  = NamespaceMedia + "/GetProfiles"
	actionGetStreamUri = NamespaceMedia + "/GetStreamUri"
)

// GetProfiles fetches all media profiles of the media service
func (c *Client) GetProfiles(ctx context.Context) ([]MediaProfile, error) {
	body, err := c.call(ctx, actionGetProfiles, newRequest("trt", NamespaceMedia, "GetProfiles"))
	if err != nil {
		return nil, errors.Trace(err)
	}

	resp := body.FindElement("./GetProfilesResponse")
	if resp == nil {
		return nil, errors.NotFoundf("GetProfilesResponse")
	}

	var profiles []MediaProfile
	for _, p := range resp.FindElements("./Profiles") {
		profile := MediaProfile{
			Token: p.SelectAttrValue("token", ""),
			Name:  childText(p, "./Name"),
		}
		// Audio-only and metadata profiles have no VideoEncoderConfiguration
		if vec := p.FindElement("./VideoEncoderConfiguration"); vec != nil {
			profile.VideoEncoder = &VideoEncoderConfig{
				Encoding: childText(vec, "./Encoding"),
				Width:    childInt(vec, "./Resolution/Width"),
				Height:   childInt(vec, "./Resolution/Height"),
			}
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

// GetStreamURI retrieves the stream URI for a profile token
func (c *Client) GetStreamURI(ctx context.Context, sr StreamRequest) (string, error) {
	req := newRequest("trt", NamespaceMedia, "GetStreamUri")
	setup := req.CreateElement("trt:StreamSetup")
	setup.CreateElement("tt:Stream").SetText(string(sr.Stream))
	setup.CreateElement("tt:Transport").CreateElement("tt:Protocol").SetText(string(sr.Protocol))
	req.CreateElement("trt:ProfileToken").SetText(sr.ProfileToken)

	body, err := c.call(ctx, actionGetStreamUri, req)
	if err != nil {
		return "", errors.Trace(err)
	}

	uri := childText(body, "./GetStreamUriResponse/MediaUri/Uri")
	if uri == "" {
		return "", errors.NotFoundf("stream URI for profile %q", sr.ProfileToken)
	}
	return uri, nil
}
