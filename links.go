package onvif

import (
	"net/url"
	"strings"

	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

// AssembleLinks keeps the streams encoded with codec (case-insensitive) and
// returns their media URIs with creds embedded as user info.
func AssembleLinks(streams []StreamSpec, codec string, creds *Credentials, logger zerolog.Logger) ([]string, error) {
	if creds == nil {
		return nil, errors.NotValidf("stream links without credentials")
	}

	var links []string
	for _, stream := range streams {
		if !strings.EqualFold(stream.Video.Encoding, codec) {
			logger.Debug().
				Str("stream", stream.Name).
				Str("encoding", stream.Video.Encoding).
				Msg("encoding not wanted, skipping")
			continue
		}

		link, err := CredentialedURI(stream.MediaURI, creds)
		if err != nil {
			logger.Warn().Err(err).Str("stream", stream.Name).Msg("unusable media URI")
			continue
		}
		links = append(links, link)
	}
	return links, nil
}

// CredentialedURI replaces the user info of an RTSP URI with creds
func CredentialedURI(mediaURI string, creds *Credentials) (string, error) {
	u, err := base.ParseURL(mediaURI)
	if err != nil {
		return "", errors.NewNotSupported(err, "media URI "+mediaURI)
	}

	out := u.CloneWithoutCredentials()
	out.User = url.UserPassword(creds.Username, creds.Password)
	return out.String(), nil
}
