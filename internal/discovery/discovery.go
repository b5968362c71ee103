// Package discovery advertises this endpoint via mDNS/DNS-SD and
// maintains the peer table: a mapping from peer identifier to transport
// address. The sender reads the table; only the discovery listener
// writes to it, and it never blocks the audio path.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/brutella/dnssd"
)

// ServiceType is the well-known service-advertisement type string this
// endpoint registers under and browses for.
const ServiceType = "_udp_voice._udp.local."

// Peer is one entry in the peer table: a stable identifier and the
// transport address voice datagrams are sent to.
type Peer struct {
	ID       string
	Addr     *net.UDPAddr
	LastSeen time.Time
}

// PeerTable is a concurrent-read, single-write mapping from peer
// identifier to transport address. Stale entries are permitted; per the
// resolved Open Question on peer expiry, entries are never evicted —
// LastSeen is a gauge for observability only.
type PeerTable struct {
	mu    sync.RWMutex
	peers map[string]Peer
}

// NewPeerTable returns an empty peer table.
func NewPeerTable() *PeerTable {
	return &PeerTable{peers: make(map[string]Peer)}
}

// Upsert inserts or refreshes a peer entry. Called only by the discovery
// listener goroutine.
func (t *PeerTable) Upsert(p Peer) {
	p.LastSeen = time.Now()
	t.mu.Lock()
	t.peers[p.ID] = p
	t.mu.Unlock()
}

// Snapshot returns a copy of all current peer addresses. The sender
// takes this short lock, copies, then transmits outside the lock.
func (t *PeerTable) Snapshot() []Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p)
	}
	return out
}

// Remove deletes a peer by identifier. Exposed for tests and for the
// supplemental "peer removal mid-send" scenario (E6); not called by the
// steady-state discovery listener, which never implicitly evicts peers.
func (t *PeerTable) Remove(id string) {
	t.mu.Lock()
	delete(t.peers, id)
	t.mu.Unlock()
}

// Len reports the number of peers currently known.
func (t *PeerTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

// Advertiser owns the DNS-SD responder that announces this endpoint.
type Advertiser struct {
	responder dnssd.Responder
	cancel    context.CancelFunc
}

// Advertise registers instanceName on ServiceType at the given port with
// properties, and starts a background responder goroutine. Call Close to
// stop announcing.
func Advertise(instanceName string, port int, properties map[string]string) (*Advertiser, error) {
	if instanceName == "" {
		instanceName = defaultInstanceName()
	}

	cfg := dnssd.Config{
		Name: instanceName,
		Type: ServiceType,
		Port: port,
		Text: properties,
	}

	svc, err := dnssd.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("discovery: create service: %w", err)
	}

	responder, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("discovery: create responder: %w", err)
	}

	if _, err := responder.Add(svc); err != nil {
		return nil, fmt.Errorf("discovery: add service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = responder.Respond(ctx)
	}()

	return &Advertiser{responder: responder, cancel: cancel}, nil
}

// Close stops the advertisement responder.
func (a *Advertiser) Close() {
	if a.cancel != nil {
		a.cancel()
	}
}

// Browse watches ServiceType for resolved peers and inserts them into
// table, translating each resolved service's first IPv4 address into a
// Peer keyed by its instance name; the resolved hostname is not used. udpPort is the
// port peers are expected to listen for audio datagrams on (peers agree
// on this out of band, per §6).
func Browse(ctx context.Context, table *PeerTable, udpPort int) error {
	added := func(e dnssd.BrowseEntry) {
		for _, ip := range e.IPs {
			if ip4 := ip.To4(); ip4 != nil {
				table.Upsert(Peer{
					ID:   e.Name,
					Addr: &net.UDPAddr{IP: ip4, Port: udpPort},
				})
				return
			}
		}
	}
	removed := func(e dnssd.BrowseEntry) {
		// Per the resolved Open Question, removal events do not evict
		// the peer table entry; discovery flapping should not interrupt
		// an in-flight stream. Left as a no-op hook for future metrics.
		_ = e
	}

	return dnssd.LookupType(ctx, ServiceType, added, removed)
}

func defaultInstanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "udpvoice-peer"
	}
	return host
}
