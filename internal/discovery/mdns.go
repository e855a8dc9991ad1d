// Package discovery advertises the HTTP API on the local network over mDNS.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/hashicorp/mdns"
)

// ServiceType is the DNS-SD service the API is announced as.
const ServiceType = "_artselect._tcp"

// Config describes the advertisement.
type Config struct {
	Instance string
	Port     int
	// IPs overrides address detection. Empty means every host address.
	IPs []net.IP
	// Info becomes the TXT record.
	Info []string
}

// Advertiser is a running mDNS responder.
type Advertiser struct {
	server  *mdns.Server
	service *mdns.MDNSService
}

// Advertise starts answering mDNS queries for cfg.
func Advertise(cfg Config) (*Advertiser, error) {
	instance := cfg.Instance
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("discovery: hostname: %w", err)
		}
		instance = host
	}
	info := cfg.Info
	if len(info) == 0 {
		info = []string{"path=/api"}
	}
	svc, err := mdns.NewMDNSService(instance, ServiceType, "", "", cfg.Port, cfg.IPs, info)
	if err != nil {
		return nil, fmt.Errorf("discovery: service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return nil, fmt.Errorf("discovery: start responder: %w", err)
	}
	return &Advertiser{server: server, service: svc}, nil
}

// Service returns the advertised zone.
func (a *Advertiser) Service() *mdns.MDNSService { return a.service }

// Shutdown stops the responder.
func (a *Advertiser) Shutdown() error {
	return a.server.Shutdown()
}

// Run advertises cfg until ctx is cancelled.
func Run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	a, err := Advertise(cfg)
	if err != nil {
		return err
	}
	logger.Info("mdns advertising", slog.String("service", ServiceType), slog.String("instance", a.service.Instance), slog.Int("port", cfg.Port))
	<-ctx.Done()
	return a.Shutdown()
}
