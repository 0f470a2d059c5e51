package onvif

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Device results
const (
	deviceEmitted       = "emitted"
	deviceNoEndpoint    = "no_endpoint"
	deviceServicesError = "services_error"
	deviceStreamsError  = "streams_error"
	deviceLinksError    = "links_error"
)

// Profile results
const (
	profileResolved = "resolved"
	profileFailed   = "failed"
	profileFiltered = "filtered"
)

var (
	devicesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onvif_devices_total",
		Help: "Total number of processed devices, by result.",
	}, []string{"result"})

	devicesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "onvif_devices_in_flight",
		Help: "Number of devices currently being processed.",
	})

	profilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onvif_profiles_total",
		Help: "Total number of media profiles seen, by result.",
	}, []string{"result"})

	linksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "onvif_links_total",
		Help: "Total number of emitted stream links.",
	})
)
