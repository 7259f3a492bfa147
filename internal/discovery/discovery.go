package discovery

import (
	"context"

	"github.com/grandcat/zeroconf"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// Service is the mDNS service type the coordinator announces.
	Service = "_erevent._tcp"
	// Domain is the multicast domain used for all records.
	Domain = "local."
)

// Endpoint is one coordinator sighting on the network. The address comes from
// the multicast response itself, not from the record payload.
type Endpoint struct {
	Address string
	Port    int
}

// Server keeps the announcement alive until Shutdown.
type Server struct {
	zc *zeroconf.Server
}

// Shutdown unregisters the service record.
func (s *Server) Shutdown() {
	if s != nil && s.zc != nil {
		s.zc.Shutdown()
	}
}

// Announce publishes the coordinator's service record so clients can find it
// without manual configuration.
func Announce(instance string, port int) (*Server, error) {
	zc, err := zeroconf.Register(instance, Service, Domain, port, []string{"txtv=0"}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "register zeroconf service")
	}
	log.Info().Str("instance", instance).Int("port", port).Msg("zeroconf service announced")
	return &Server{zc: zc}, nil
}

// Resolve browses for coordinator records and streams sightings as they appear
// on the network. The channel closes when ctx is done; a fresh call re-scans.
func Resolve(ctx context.Context) (<-chan Endpoint, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, errors.Wrap(err, "initialize zeroconf resolver")
	}

	entries := make(chan *zeroconf.ServiceEntry)
	out := make(chan Endpoint)
	go func() {
		defer close(out)
		for entry := range entries {
			if len(entry.AddrIPv4) == 0 {
				continue
			}
			ep := Endpoint{Address: entry.AddrIPv4[0].String(), Port: entry.Port}
			select {
			case out <- ep:
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return nil, errors.Wrap(err, "browse zeroconf service")
	}
	return out, nil
}

// ResolveFirst returns the first sighting and ignores the rest. With more than
// one coordinator on the network the selection is whichever record arrives
// first; multi-coordinator setups are unsupported and this stays undefined.
func ResolveFirst(ctx context.Context) (Endpoint, error) {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sightings, err := Resolve(cctx)
	if err != nil {
		return Endpoint{}, err
	}
	select {
	case ep, ok := <-sightings:
		if !ok {
			return Endpoint{}, errors.New("discovery ended before any coordinator was seen")
		}
		log.Info().Str("address", ep.Address).Int("port", ep.Port).Msg("coordinator discovered")
		return ep, nil
	case <-ctx.Done():
		return Endpoint{}, errors.Wrap(ctx.Err(), "waiting for coordinator sighting")
	}
}
