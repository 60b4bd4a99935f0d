package healthmesh

import (
	"encoding/binary"
	"net"
	"strconv"
	"time"

	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/log"
)

// probeMagic tags a UDP datagram as a health-mesh probe so the server can ignore stray traffic
// on its port without needing a handshake.
const probeMagic = uint32(0x6f647075) // "odpu"

// Server answers every probe datagram it receives by echoing it back unchanged, the minimal
// shape a round-trip latency measurement needs. Only the cluster leader runs one.
type Server struct {
	addr string
	conn net.PacketConn
	done chan struct{}
}

func NewServer(bindAddr string, bindPort int) *Server {
	return &Server{addr: net.JoinHostPort(bindAddr, strconv.Itoa(bindPort)), done: make(chan struct{})}
}

func (s *Server) Start() error {
	conn, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return err
	}
	s.conn = conn
	go s.serve()
	log.Infof("healthmesh: probe server listening on %s", s.addr)
	return nil
}

func (s *Server) serve() {
	buf := make([]byte, 16)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				log.Debugf("healthmesh: probe server read error: %v", err)
				return
			}
		}
		if n < 4 || binary.BigEndian.Uint32(buf) != probeMagic {
			continue
		}
		_, _ = s.conn.WriteTo(buf[:n], addr)
	}
}

func (s *Server) Stop() {
	close(s.done)
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// Prober repeatedly measures round-trip latency against one cluster member's VPN address,
// backing off exponentially between failed probes and resetting on success.
type Prober struct {
	peer    ids.PeerId
	addr    string
	publish func(Result)

	stop chan struct{}
}

func NewProber(peer ids.PeerId, addr string, publish func(Result)) *Prober {
	return &Prober{peer: peer, addr: addr, publish: publish, stop: make(chan struct{})}
}

func (p *Prober) Stop() { close(p.stop) }

// Run loops until Stop is called, probing at ProbeInterval on success and backing off up to
// MaxProbeBackoff on consecutive failures.
func (p *Prober) Run() {
	b := newBackoff(MaxProbeBackoff)
	for {
		rtt, err := probeOnce(p.addr)
		if err != nil {
			log.Debugf("healthmesh: probe to peer %s (%s) failed: %v", p.peer, p.addr, err)
			p.publish(Result{Peer: p.peer, Addr: p.addr, Healthy: false})
			select {
			case <-p.stop:
				return
			case <-time.After(b.next()):
				continue
			}
		}
		b.reset()
		p.publish(Result{Peer: p.peer, Addr: p.addr, RTT: rtt, Healthy: true})
		select {
		case <-p.stop:
			return
		case <-time.After(ProbeInterval):
		}
	}
}

// probeOnce sends one magic-tagged datagram to addr and measures the round trip until it is
// echoed back, or returns an error on timeout/transport failure.
func probeOnce(addr string) (time.Duration, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload, probeMagic)
	binary.BigEndian.PutUint64(payload[4:], uint64(time.Now().UnixNano()))

	if err := conn.SetDeadline(time.Now().Add(2 * time.Second)); err != nil {
		return 0, err
	}
	sentAt := time.Now()
	if _, err := conn.Write(payload); err != nil {
		return 0, err
	}

	resp := make([]byte, 16)
	n, err := conn.Read(resp)
	if err != nil {
		return 0, err
	}
	if n < 4 || binary.BigEndian.Uint32(resp) != probeMagic {
		return 0, errInvalidEcho
	}
	return time.Since(sentAt), nil
}

var errInvalidEcho = invalidEchoError{}

type invalidEchoError struct{}

func (invalidEchoError) Error() string { return "healthmesh: invalid probe echo" }
