package devices

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/tinyrange/riscv-core/internal/iorouter"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// tcpConnState mirrors the original kernel's tcp_status encoding (spec §4.8
// syscall 37): 0=closed, 1=connecting, 2=connected, 3=failed.
type tcpConnState int

const (
	tcpClosed tcpConnState = iota
	tcpConnecting
	tcpConnected
	tcpFailed
)

// Network is the network-interface device handler state (spec §4.6).
// Packet-level I/O and DHCP negotiation stay out of scope (spec §1
// Non-goals: no hand-rolled TCP/IP stack), so the DNS/ping/TCP/HTTP
// operations delegate to the host's real net stack the same way a device
// handler delegates to host hardware, rather than re-implementing
// smoltcp-style state machines.
type Network struct {
	mu         sync.RWMutex
	online     bool
	ip         [4]byte
	ipAssigned bool
	mac        [6]byte
	gateway    [4]byte
	dns        [4]byte
	prefixLen  uint8

	// DNSServer is the resolver dns_resolve queries (spec §4.8 syscall 31),
	// "8.8.8.8:53" by default per original_source/kernel/src/net.rs's
	// DNS_SERVER constant.
	DNSServer string

	tcpConn  net.Conn
	tcpState tcpConnState
}

// NewNetwork constructs an online, unconfigured (no IP assigned) interface
// with the given MAC address.
func NewNetwork(mac [6]byte) *Network {
	return &Network{online: true, mac: mac, DNSServer: "8.8.8.8:53"}
}

// Configure assigns the interface's IPv4 configuration, as DHCP completing
// would (spec §6's net_info fields).
func (n *Network) Configure(ip, gateway, dns [4]byte, prefixLen uint8) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ip = ip
	n.gateway = gateway
	n.dns = dns
	n.prefixLen = prefixLen
	n.ipAssigned = true
}

// SetOnline toggles the interface's reported link state.
func (n *Network) SetOnline(online bool) {
	n.mu.Lock()
	n.online = online
	n.mu.Unlock()
}

// Poll implements NetPoll{timestamp_ms}: runs the network stack poll step,
// returns empty (spec §4.6). No packets are actually exchanged in this
// simulation, so this is a no-op that exists for handler-contract parity.
func (n *Network) Poll(timestampMS uint64) {}

// IsIPAssigned implements NetIsIpAssigned: a single byte (spec §4.6).
func (n *Network) IsIPAssigned() []byte {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.ipAssigned {
		return []byte{1}
	}
	return []byte{0}
}

// GetIP implements NetGetIp: 4 raw IPv4 octets (spec §4.6), zero if
// unassigned.
func (n *Network) GetIP() []byte {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ip := n.ip
	return ip[:]
}

// Status implements Status: "online a.b.c.d" / "online no-ip" / "offline"
// (spec §4.6).
func (n *Network) Status() []byte {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if !n.online {
		return []byte("offline")
	}
	if !n.ipAssigned {
		return []byte("online no-ip")
	}
	return []byte(fmt.Sprintf("online %d.%d.%d.%d", n.ip[0], n.ip[1], n.ip[2], n.ip[3]))
}

// Info encodes the 19-byte net_info record the net_info syscall returns
// (spec §6): [4 IP][6 MAC][4 gateway][4 DNS][u8 prefix_len].
func (n *Network) Info() [19]byte {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out [19]byte
	copy(out[0:4], n.ip[:])
	copy(out[4:10], n.mac[:])
	copy(out[10:14], n.gateway[:])
	copy(out[14:18], n.dns[:])
	out[18] = n.prefixLen
	return out
}

// Resolve implements dns_resolve (spec §4.8 syscall 31): an A-record query
// against n.DNSServer via a real DNS client, grounded on
// original_source/kernel/src/syscall.rs's sys_dns_resolve /
// crate::dns::resolve, which queries a fixed 8.8.8.8 resolver with a
// 5-second budget. Returns the 4 IPv4 octets, or nil if resolution failed.
func (n *Network) Resolve(host string, timeout time.Duration) []byte {
	if host == "" {
		return nil
	}
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	client := &dns.Client{Timeout: timeout}
	reply, _, err := client.Exchange(msg, n.DNSServer)
	if err != nil || reply == nil {
		return nil
	}
	for _, rr := range reply.Answer {
		if a, ok := rr.(*dns.A); ok {
			if ip4 := a.A.To4(); ip4 != nil {
				return ip4
			}
		}
	}
	return nil
}

// Ping implements send_ping (spec §4.8 syscall 32): an ICMP echo over an
// unprivileged "udp4" ICMP socket (no raw-socket capability required),
// grounded on original_source/kernel/src/syscall.rs's sys_send_ping
// (send-then-poll-until-deadline shape), using golang.org/x/net/icmp in
// place of the original's smoltcp ICMP socket. Returns the round-trip time
// in milliseconds with ok=true, or (0, false) on timeout or any failure.
func (n *Network) Ping(ip [4]byte, seq int, timeout time.Duration) (rttMS int64, ok bool) {
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		return 0, false
	}
	defer conn.Close()

	target := net.IPv4(ip[0], ip[1], ip[2], ip[3])
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho, Code: 0,
		Body: &icmp.Echo{ID: 0x1234, Seq: seq, Data: []byte("riscv-core-ping")},
	}
	wireBytes, err := msg.Marshal(nil)
	if err != nil {
		return 0, false
	}

	start := time.Now()
	if _, err := conn.WriteTo(wireBytes, &net.UDPAddr{IP: target}); err != nil {
		return 0, false
	}
	conn.SetReadDeadline(start.Add(timeout))

	reply := make([]byte, 1500)
	for {
		rn, _, err := conn.ReadFrom(reply)
		if err != nil {
			return 0, false
		}
		parsed, err := icmp.ParseMessage(1 /* ICMP proto number */, reply[:rn])
		if err != nil {
			continue
		}
		if parsed.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		if echo, ok := parsed.Body.(*icmp.Echo); ok && echo.Seq == seq {
			return time.Since(start).Milliseconds(), true
		}
	}
}

// TCPConnect implements tcp_connect (spec §4.8 syscall 33): dials a real
// TCP connection, tracking the status tcp_status later reports.
func (n *Network) TCPConnect(ip [4]byte, port uint16, timeout time.Duration) bool {
	n.mu.Lock()
	if n.tcpConn != nil {
		n.tcpConn.Close()
		n.tcpConn = nil
	}
	n.tcpState = tcpConnecting
	n.mu.Unlock()

	addr := net.JoinHostPort(net.IPv4(ip[0], ip[1], ip[2], ip[3]).String(), fmt.Sprintf("%d", port))
	conn, err := net.DialTimeout("tcp", addr, timeout)

	n.mu.Lock()
	defer n.mu.Unlock()
	if err != nil {
		n.tcpState = tcpFailed
		return false
	}
	n.tcpConn = conn
	n.tcpState = tcpConnected
	return true
}

// TCPSend implements tcp_send (spec §4.8 syscall 34): writes to the
// connection opened by TCPConnect. Returns bytes written, or -1.
func (n *Network) TCPSend(data []byte) int64 {
	n.mu.Lock()
	conn := n.tcpConn
	n.mu.Unlock()
	if conn == nil {
		return -1
	}
	written, err := conn.Write(data)
	if err != nil {
		n.mu.Lock()
		n.tcpState = tcpFailed
		n.mu.Unlock()
		return -1
	}
	return int64(written)
}

// TCPRecv implements tcp_recv (spec §4.8 syscall 35): a single
// non-blocking-ish read bounded by a short deadline, since this ABI has no
// separate poll step the caller awaits. Returns bytes read, 0 if nothing
// arrived within the deadline, or -1 on a hard failure.
func (n *Network) TCPRecv(buf []byte) int64 {
	n.mu.Lock()
	conn := n.tcpConn
	n.mu.Unlock()
	if conn == nil {
		return -1
	}
	conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	read, err := conn.Read(buf)
	if err != nil {
		if err == io.EOF {
			return 0
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0
		}
		return -1
	}
	return int64(read)
}

// TCPClose implements tcp_close (spec §4.8 syscall 36).
func (n *Network) TCPClose() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tcpConn == nil {
		return -1
	}
	n.tcpConn.Close()
	n.tcpConn = nil
	n.tcpState = tcpClosed
	return 0
}

// TCPStatus implements tcp_status (spec §4.8 syscall 37): 0=closed,
// 1=connecting, 2=connected, 3=failed.
func (n *Network) TCPStatus() int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return int64(n.tcpState)
}

// HTTPGet implements http_get (spec §4.8 syscall 38): a real HTTP GET via
// net/http, the host's HTTP client standing in for the original's
// commands::http::get_follow_redirects (the spec's Non-goals explicitly
// keep hand-rolled HTTP parsing out of scope, spec §1). Returns the
// response body, or nil on any failure.
func (n *Network) HTTPGet(ctx context.Context, url string, timeout time.Duration) []byte {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil
	}
	return body
}

// Handler returns the iorouter.Handler for the network device.
func (n *Network) Handler() iorouter.Handler {
	return func(req *iorouter.IoRequest) iorouter.IoResult {
		switch req.Op.Kind {
		case iorouter.OpNetPoll:
			n.Poll(req.Op.TimestampMS)
			return iorouter.OkResult(nil)
		case iorouter.OpNetIsIPAssigned:
			return iorouter.OkResult(n.IsIPAssigned())
		case iorouter.OpNetGetIP:
			return iorouter.OkResult(n.GetIP())
		case iorouter.OpStatus:
			return iorouter.OkResult(n.Status())
		case iorouter.OpDNSResolve:
			timeout := time.Duration(req.Op.TimeoutMS) * time.Millisecond
			if timeout <= 0 {
				timeout = 5 * time.Second
			}
			ip := n.Resolve(req.Op.Host, timeout)
			if ip == nil {
				return iorouter.ErrResult("dns: resolution failed")
			}
			return iorouter.OkResult(ip)
		case iorouter.OpSendPing:
			timeout := time.Duration(req.Op.TimeoutMS) * time.Millisecond
			rtt, ok := n.Ping(req.Op.IP4, int(req.Op.Seq), timeout)
			if !ok {
				return iorouter.ErrResult("ping: no reply")
			}
			out := make([]byte, 4)
			binary.LittleEndian.PutUint32(out, uint32(rtt))
			return iorouter.OkResult(out)
		case iorouter.OpTCPConnect:
			if !n.TCPConnect(req.Op.IP4, req.Op.Port, networkIOTimeout) {
				return iorouter.ErrResult("tcp: connect failed")
			}
			return iorouter.OkResult(nil)
		case iorouter.OpTCPSend:
			sent := n.TCPSend(req.Op.Data)
			if sent < 0 {
				return iorouter.ErrResult("tcp: send failed")
			}
			out := make([]byte, 8)
			binary.LittleEndian.PutUint64(out, uint64(sent))
			return iorouter.OkResult(out)
		case iorouter.OpTCPRecv:
			buf := make([]byte, req.Op.BufLen)
			recvd := n.TCPRecv(buf)
			if recvd < 0 {
				return iorouter.ErrResult("tcp: recv failed")
			}
			return iorouter.OkResult(buf[:recvd])
		case iorouter.OpTCPClose:
			if n.TCPClose() != 0 {
				return iorouter.ErrResult("tcp: not connected")
			}
			return iorouter.OkResult(nil)
		case iorouter.OpTCPStatus:
			out := make([]byte, 8)
			binary.LittleEndian.PutUint64(out, uint64(n.TCPStatus()))
			return iorouter.OkResult(out)
		case iorouter.OpHTTPGet:
			body := n.HTTPGet(context.Background(), req.Op.URL, networkIOTimeout)
			if body == nil {
				return iorouter.ErrResult("http: request failed")
			}
			return iorouter.OkResult(body)
		default:
			return iorouter.ErrResult(req.Device.String() + ": not implemented via I/O router")
		}
	}
}

// networkIOTimeout bounds the TCP/HTTP ops dispatched through the router
// that don't carry their own caller-supplied timeout (spec §4.8).
const networkIOTimeout = 10 * time.Second
