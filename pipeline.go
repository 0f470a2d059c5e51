package onvif

import (
	"context"
	"net"
	"sync"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Pipeline turns discovered devices into credentialed stream links.
// Its fields are read-only once Run is called.
type Pipeline struct {
	Connector   Connector
	Credentials *Credentials
	ListenAddr  net.IP
	ServicePath string
	Codec       string

	// Upper bound on devices processed at the same time; more devices queue
	MaxConcurrentDevices int
	// Upper bound on GetStreamUri requests in flight per device
	ProfileConcurrency int

	Logger zerolog.Logger

	// Emit receives every link. Calls are serialized.
	Emit func(link string)

	emitMu sync.Mutex
}

// NewPipeline creates a pipeline from a validated configuration
func NewPipeline(cfg *Config, connector Connector, logger zerolog.Logger, emit func(link string)) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	creds, _ := cfg.Credentials()
	listen, _ := cfg.ListenIP()

	return &Pipeline{
		Connector:            connector,
		Credentials:          creds,
		ListenAddr:           listen,
		ServicePath:          cfg.ServicePath,
		Codec:                cfg.Codec,
		MaxConcurrentDevices: cfg.MaxConcurrentDevices,
		ProfileConcurrency:   cfg.ProfileConcurrency,
		Logger:               logger,
		Emit:                 emit,
	}, nil
}

// Run processes devices until the channel is closed or ctx is done, then
// waits for the devices already started. Device failures are logged and never
// stop the run.
func (p *Pipeline) Run(ctx context.Context, devices <-chan Device) error {
	var g errgroup.Group
	limit := p.MaxConcurrentDevices
	if limit < 1 {
		limit = DefaultMaxConcurrentDevices
	}
	g.SetLimit(limit)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case device, ok := <-devices:
			if !ok {
				break loop
			}
			// Blocks while limit devices are in flight
			g.Go(func() error {
				p.processDevice(ctx, device)
				return nil
			})
		}
	}

	_ = g.Wait()
	return errors.Trace(ctx.Err())
}

// processDevice runs one device through every stage and emits its links
func (p *Pipeline) processDevice(ctx context.Context, device Device) {
	devicesInFlight.Inc()
	defer devicesInFlight.Dec()

	logger := p.Logger.With().Str("device", device.Address).Logger()

	links, result, err := p.resolveDevice(ctx, device, logger)
	devicesTotal.WithLabelValues(result).Inc()
	if err != nil {
		logger.Warn().Err(err).Str("stage", result).Msg("skipping device")
		return
	}

	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	for _, link := range links {
		p.Emit(link)
		linksTotal.Inc()
	}
}

// resolveDevice returns the links of a device and the result label for metrics
func (p *Pipeline) resolveDevice(ctx context.Context, device Device, logger zerolog.Logger) ([]string, string, error) {
	endpoint, ok := SelectEndpoint(device.URLs, p.ListenAddr)
	if !ok {
		logger.Info().Int("urls", len(device.URLs)).Msg("no https endpoint on the local subnet")
		return nil, deviceNoEndpoint, nil
	}
	base := DeviceBaseURI(endpoint, p.ServicePath)
	logger = logger.With().Str("endpoint", base.String()).Logger()

	clients, err := NewClientSet(ctx, p.Connector, base, p.Credentials, p.ServicePath, logger)
	if err != nil {
		return nil, deviceServicesError, errors.Trace(err)
	}
	logger.Debug().Strs("services", roleNames(clients.Roles())).Msg("got services")

	streams, err := ResolveStreams(ctx, clients.Media(), p.ProfileConcurrency, logger)
	if err != nil {
		return nil, deviceStreamsError, errors.Trace(err)
	}

	links, err := AssembleLinks(streams, p.Codec, p.Credentials, logger)
	if err != nil {
		return nil, deviceLinksError, errors.Trace(err)
	}
	return links, deviceEmitted, nil
}

func roleNames(roles []Role) []string {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = role.String()
	}
	return names
}
