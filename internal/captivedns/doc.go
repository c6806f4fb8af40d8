// Package captivedns implements the black-hole resolver that makes a captive
// portal work: every question, whatever its name or type, is answered with
// an A record pointing at the portal. There is no NXDOMAIN, no upstream
// forwarding and no error rcode.
//
// The Responder is cooperative. It owns a UDP socket but no goroutine; the
// caller's loop must invoke ServiceOnce regularly. Each call answers the
// queries already waiting on the socket (up to MaxPerTurn) and returns after
// at most PollWindow when nothing is pending.
//
// Queries are decoded with github.com/miekg/dns. Packets the library refuses
// to decode are still answered: the first question is echoed verbatim and a
// compressed A record pointing at it is appended.
package captivedns
