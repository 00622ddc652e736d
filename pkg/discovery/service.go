package discovery

import (
	"context"
	"net"
)

const (
	DefaultServerType = "_call-signaling._tcp"
	DefaultDomain     = "local"
)

// ServiceInfo describes one announced signaling-store server.
type ServiceInfo struct {
	Name   string // hostname or instance name
	Type   string // service name, e.g., "_call-signaling._tcp"
	Domain string // domain, e.g., "local"
	Addr   net.IP
	Port   int
}

// DiscoveryResult carries either a browse snapshot or a lookup error.
type DiscoveryResult struct {
	Services []ServiceInfo
	Error    error
}

type Adapter interface {
	Announce(ctx context.Context, service ServiceInfo) error
	Discover(ctx context.Context, service string) <-chan DiscoveryResult
}
