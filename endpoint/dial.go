package endpoint

import (
	"context"
	"net"
	"net/url"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// DialSource derives live cluster state from configuration by dialing each
// destination. A destination is available when a TCP connection succeeds
// within the dial timeout.
type DialSource struct {
	config  ConfigSource
	timeout time.Duration
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewDialSource creates a ClusterSource backed by active dials
func NewDialSource(config ConfigSource, timeout time.Duration) *DialSource {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	dialer := &net.Dialer{}
	return &DialSource{config: config, timeout: timeout, dial: dialer.DialContext}
}

// Clusters implements ClusterSource
func (p *DialSource) Clusters(ctx context.Context) []ClusterState {
	clusters, ok := p.config.Clusters()
	if !ok {
		return nil
	}

	ids := make([]string, 0, len(clusters))
	for id := range clusters {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	states := make([]ClusterState, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		cfg := clusters[id]
		names := make([]string, 0, len(cfg.Destinations))
		for name := range cfg.Destinations {
			names = append(names, name)
		}
		sort.Strings(names)

		state := ClusterState{ID: id, Metadata: cfg.Metadata, Destinations: make([]DestinationState, len(names))}
		for j, name := range names {
			state.Destinations[j] = DestinationState{Name: name, Address: cfg.Destinations[name].Address}
		}
		states[i] = state

		if !Enabled(cfg.Metadata) {
			continue
		}
		for j := range state.Destinations {
			dest := &states[i].Destinations[j]
			g.Go(func() error {
				dest.Available = p.reachable(gctx, dest.Address)
				return nil
			})
		}
	}
	_ = g.Wait()
	return states
}

func (p *DialSource) reachable(ctx context.Context, address string) bool {
	u, err := url.Parse(address)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Host
	if u.Port() == "" {
		if u.Scheme == "https" {
			host = net.JoinHostPort(u.Hostname(), "443")
		} else {
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	conn, err := p.dial(ctx, "tcp", host)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
