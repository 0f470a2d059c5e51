package onvif

import (
	"context"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ResolveStreams fetches the profiles of a media service and resolves a
// stream URI for every profile carrying a video encoder configuration.
//
// Profiles are resolved independently: a failed GetStreamUri is logged and
// drops only that profile. The result keeps catalog order with failed and
// filtered profiles left out.
func ResolveStreams(ctx context.Context, media ServiceClient, parallelism int, logger zerolog.Logger) ([]StreamSpec, error) {
	if media == nil {
		return nil, errors.NotFoundf("media service client")
	}

	profiles, err := media.GetProfiles(ctx)
	if err != nil {
		return nil, errors.Annotatef(err, "getting profiles from %s", media.Endpoint())
	}
	logger.Debug().Int("profiles", len(profiles)).Msg("got profiles")

	// Indexed by catalog position; nil means no request was made
	outcomes := make([]*StreamOutcome, len(profiles))

	// Plain Group, not WithContext: one failure must not cancel the others
	var g errgroup.Group
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i, profile := range profiles {
		if profile.VideoEncoder == nil {
			logger.Debug().
				Str("profile", profile.Token).
				Str("name", profile.Name).
				Msg("profile has no video encoder, skipping")
			profilesTotal.WithLabelValues(profileFiltered).Inc()
			continue
		}
		i, profile := i, profile
		g.Go(func() error {
			uri, err := media.GetStreamURI(ctx, NewStreamRequest(profile.Token))
			outcomes[i] = &StreamOutcome{Index: i, Token: profile.Token, URI: uri, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var streams []StreamSpec
	for _, outcome := range outcomes {
		if outcome == nil {
			continue
		}
		if outcome.Err != nil {
			logger.Warn().Err(outcome.Err).Str("profile", outcome.Token).Msg("failed to get stream URI")
			profilesTotal.WithLabelValues(profileFailed).Inc()
			continue
		}

		profile := profiles[outcome.Index]
		streams = append(streams, StreamSpec{
			Name:     profile.Name,
			MediaURI: outcome.URI,
			Video: VideoSpec{
				Encoding: profile.VideoEncoder.Encoding,
				Width:    profile.VideoEncoder.Width,
				Height:   profile.VideoEncoder.Height,
			},
		})
		profilesTotal.WithLabelValues(profileResolved).Inc()
	}
	return streams, nil
}
