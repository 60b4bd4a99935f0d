// Package healthmesh is the Cluster Health Mesh: once an ECA receives a ClusterAssignment,
// the leader starts a latency-probe server and every other member starts a probing client
// against every other member's VPN address with exponential back-off. Results are published
// as telemetry only; there is no feedback path into the control plane.
package healthmesh

import (
	stdlog "log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/log"
)

// ProbeInterval is the target spacing between successful probes against one peer; back-off
// only lengthens this on consecutive failures.
const ProbeInterval = 5 * time.Second

// MaxProbeBackoff caps how long a failing probe against one peer waits before retrying.
const MaxProbeBackoff = 60 * time.Second

// Result is one latency measurement against a cluster member, published as telemetry.
type Result struct {
	Peer    ids.PeerId
	Addr    string
	RTT     time.Duration
	Healthy bool
}

// loggerAdapter routes memberlist's standard-library logger onto the process-wide zap
// logger, mapping the [LEVEL] prefixes memberlist emits onto zap levels.
type loggerAdapter struct{ l *zap.Logger }

func (a *loggerAdapter) Write(p []byte) (int, error) {
	msg := string(p)
	lvl := "[DEBUG]"
	if parts := strings.SplitN(msg, " ", 2); len(parts) > 1 {
		lvl, msg = parts[0], strings.TrimPrefix(parts[1], "memberlist: ")
	}
	switch lvl {
	case "[WARN]":
		a.l.Warn(msg)
	case "[ERR]":
		a.l.Error(msg)
	default:
		a.l.Debug(msg)
	}
	return len(p), nil
}

// Mesh drives the Cluster Health Mesh for one ECA's current ClusterAssignment: a memberlist
// instance for liveness/membership visibility, plus one Prober per other member (or, on the
// leader, a Server answering them).
type Mesh struct {
	self     ids.PeerId
	bindAddr string
	bindPort int

	ml *memberlist.Memberlist

	mu      sync.Mutex
	server  *Server
	probers map[ids.PeerId]*Prober

	// OnResult is invoked for every published probe result, letting the caller (cmd/ecad) wire
	// telemetry export without this package depending on any particular exporter.
	OnResult func(Result)
}

func New(self ids.PeerId, bindAddr string, bindPort int) *Mesh {
	return &Mesh{self: self, bindAddr: bindAddr, bindPort: bindPort, probers: make(map[ids.PeerId]*Prober)}
}

// Join starts the memberlist transport used for membership visibility. Joining the health
// mesh is best-effort: only probing is required, not full SWIM membership, so a Join failure
// is logged and does not prevent probing.
func (m *Mesh) Join(bootstrap []string) {
	cfg := memberlist.DefaultLANConfig()
	cfg.Name = m.self.String()
	cfg.BindAddr = m.bindAddr
	cfg.BindPort = m.bindPort
	cfg.Logger = stdlog.New(&loggerAdapter{l: log.NewLoggerWithLevel("healthmesh", zapcore.InfoLevel)}, "", 0)

	ml, err := memberlist.Create(cfg)
	if err != nil {
		log.Warnf("healthmesh: creating memberlist transport: %v", err)
		return
	}
	m.ml = ml
	if len(bootstrap) > 0 {
		if _, err := ml.Join(bootstrap); err != nil {
			log.Warnf("healthmesh: joining health mesh: %v", err)
		}
	}
}

// ApplyAssignment (re)starts probing/serving for a freshly received ClusterAssignment: if self
// is the leader, ensures a Server is running; otherwise starts one Prober per other member,
// addressed at member.VpnAddress. Stale probers for members no longer present are stopped.
func (m *Mesh) ApplyAssignment(leader ids.PeerId, members map[ids.PeerId]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if leader == m.self {
		if m.server == nil {
			m.server = NewServer(m.bindAddr, m.bindPort)
			if err := m.server.Start(); err != nil {
				log.Errorf("healthmesh: starting probe server: %v", err)
				m.server = nil
			}
		}
		for id, p := range m.probers {
			p.Stop()
			delete(m.probers, id)
		}
		return
	}

	if m.server != nil {
		m.server.Stop()
		m.server = nil
	}

	seen := make(map[ids.PeerId]struct{}, len(members))
	for peerId, addr := range members {
		if peerId == m.self {
			continue
		}
		seen[peerId] = struct{}{}
		if _, ok := m.probers[peerId]; ok {
			continue
		}
		// members carries bare VPN addresses; probes go to bindPort, the port a probe server binds
		// wherever one runs.
		prober := NewProber(peerId, net.JoinHostPort(addr, strconv.Itoa(m.bindPort)), m.publish)
		m.probers[peerId] = prober
		go prober.Run()
	}
	for id, p := range m.probers {
		if _, ok := seen[id]; !ok {
			p.Stop()
			delete(m.probers, id)
		}
	}
}

func (m *Mesh) publish(r Result) {
	if m.OnResult != nil {
		m.OnResult(r)
	}
}

// Shutdown stops every prober, the probe server, and leaves the memberlist transport.
func (m *Mesh) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.probers {
		p.Stop()
		delete(m.probers, id)
	}
	if m.server != nil {
		m.server.Stop()
		m.server = nil
	}
	if m.ml != nil {
		_ = m.ml.Leave(5 * time.Second)
		_ = m.ml.Shutdown()
	}
}
