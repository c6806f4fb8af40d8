package captivedns

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/miekg/dns"
	"github.com/muurk/joinme/internal/logging"
	"go.uber.org/zap"
)

const (
	// DefaultPort is the DNS port captured clients query
	DefaultPort = 53

	// DefaultTTL is the TTL on every answer. Short, so clients re-resolve
	// once the device leaves provisioning.
	DefaultTTL = 60

	// DefaultPollWindow bounds how long ServiceOnce waits for a packet
	DefaultPollWindow = time.Millisecond

	// DefaultMaxPerTurn bounds the packets handled in one ServiceOnce call
	DefaultMaxPerTurn = 16

	headerLen = 12
	maxPacket = 1500
)

// Responder answers every DNS query with one fixed IPv4 address.
type Responder struct {
	// TTL is the answer TTL in seconds
	TTL uint32

	// PollWindow is how long ServiceOnce waits for each packet
	PollWindow time.Duration

	// MaxPerTurn caps the packets answered per ServiceOnce call
	MaxPerTurn int

	conn   net.PacketConn
	answer net.IP
	buf    []byte
}

// Listen opens a UDP socket on addr (e.g. ":53") and returns a Responder
// pointing every name at answer.
func Listen(addr string, answer net.IP) (*Responder, error) {
	if answer.To4() == nil {
		return nil, fmt.Errorf("captive dns answer must be an IPv4 address, got %v", answer)
	}
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for dns on %s: %w", addr, err)
	}
	logging.Info("Captive DNS responder started",
		zap.String("addr", conn.LocalAddr().String()),
		zap.String("answer", answer.String()),
	)
	return NewResponder(conn, answer), nil
}

// NewResponder wraps an existing packet connection.
func NewResponder(conn net.PacketConn, answer net.IP) *Responder {
	return &Responder{
		TTL:        DefaultTTL,
		PollWindow: DefaultPollWindow,
		MaxPerTurn: DefaultMaxPerTurn,
		conn:       conn,
		answer:     answer.To4(),
		buf:        make([]byte, maxPacket),
	}
}

// Addr returns the local socket address
func (r *Responder) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// AnswerIP is the address every query resolves to
func (r *Responder) AnswerIP() net.IP {
	return r.answer
}

// Close releases the socket
func (r *Responder) Close() error {
	return r.conn.Close()
}

// ServiceOnce answers the queries currently pending on the socket and
// returns how many were answered. At most MaxPerTurn datagrams are read per
// call, answered or not, and each read waits at most PollWindow.
func (r *Responder) ServiceOnce() int {
	answered := 0
	for read := 0; read < r.MaxPerTurn; read++ {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.PollWindow)); err != nil {
			logging.Warn("Failed to set dns read deadline", zap.Error(err))
			return answered
		}
		n, addr, err := r.conn.ReadFrom(r.buf)
		if err != nil {
			if !isTimeout(err) {
				logging.Warn("DNS read failed", zap.Error(err))
			}
			return answered
		}

		reply, ok := r.respond(r.buf[:n], addr.String())
		if !ok {
			continue
		}
		if _, err := r.conn.WriteTo(reply, addr); err != nil {
			logging.Warn("DNS reply failed",
				zap.String("remote_addr", addr.String()),
				zap.Error(err),
			)
			continue
		}
		answered++
	}
	return answered
}

// Answer builds the reply to one query packet. ok is false for packets that
// are not queries (responses, or shorter than a DNS header); those get no reply.
func (r *Responder) Answer(packet []byte) (reply []byte, ok bool) {
	return r.respond(packet, "")
}

func (r *Responder) respond(packet []byte, remote string) ([]byte, bool) {
	if len(packet) < headerLen || packet[2]&0x80 != 0 {
		return nil, false
	}

	req := new(dns.Msg)
	if err := req.Unpack(packet); err != nil {
		logging.LogRawBytes("Undecodable DNS query answered raw", packet)
		return r.rawAnswer(packet), true
	}

	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Authoritative = true
	resp.RecursionAvailable = false
	resp.Rcode = dns.RcodeSuccess
	resp.Question = req.Question

	if req.Opcode == dns.OpcodeQuery {
		for _, q := range req.Question {
			resp.Answer = append(resp.Answer, &dns.A{
				Hdr: dns.RR_Header{
					Name:   q.Name,
					Rrtype: dns.TypeA,
					Class:  dns.ClassINET,
					Ttl:    r.TTL,
				},
				A: r.answer,
			})
			logging.LogDNSQuery(remote, q.Name, dns.TypeToString[q.Qtype], r.answer.String())
		}
	}

	out, err := resp.Pack()
	if err != nil {
		logging.Debug("Failed to pack dns reply, answering raw", zap.Error(err))
		return r.rawAnswer(packet), true
	}
	return out, true
}

// rawAnswer echoes the first question as received and appends an A record
// whose name is a compression pointer to it (offset 12). If the question
// cannot be delimited a header-only NOERROR reply is returned.
func (r *Responder) rawAnswer(packet []byte) []byte {
	end, ok := questionEnd(packet)

	out := make([]byte, headerLen, headerLen+64)
	copy(out, packet[:headerLen])
	// QR and AA set, opcode and RD kept from the query; RA=0, RCODE=NOERROR
	out[2] = 0x84 | packet[2]&0x79
	out[3] = 0x00
	// no answer, authority or additional records yet
	binary.BigEndian.PutUint16(out[6:8], 0)
	binary.BigEndian.PutUint16(out[8:10], 0)
	binary.BigEndian.PutUint16(out[10:12], 0)

	if !ok {
		binary.BigEndian.PutUint16(out[4:6], 0)
		return out
	}

	binary.BigEndian.PutUint16(out[4:6], 1)
	binary.BigEndian.PutUint16(out[6:8], 1)
	out = append(out, packet[headerLen:end]...)

	var rr [16]byte
	rr[0], rr[1] = 0xC0, headerLen
	binary.BigEndian.PutUint16(rr[2:4], dns.TypeA)
	binary.BigEndian.PutUint16(rr[4:6], dns.ClassINET)
	binary.BigEndian.PutUint32(rr[6:10], r.TTL)
	binary.BigEndian.PutUint16(rr[10:12], net.IPv4len)
	copy(rr[12:16], r.answer)
	return append(out, rr[:]...)
}

// questionEnd returns the offset just past the first question's QTYPE and
// QCLASS, walking labels without interpreting them.
func questionEnd(packet []byte) (int, bool) {
	if binary.BigEndian.Uint16(packet[4:6]) == 0 {
		return 0, false
	}
	i := headerLen
	for {
		if i >= len(packet) {
			return 0, false
		}
		l := int(packet[i])
		if l == 0 {
			i++
			break
		}
		if l&0xC0 != 0 {
			// pointer or extended label type: two bytes and done
			i += 2
			break
		}
		i += 1 + l
	}
	if i+4 > len(packet) {
		return 0, false
	}
	return i + 4, true
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
