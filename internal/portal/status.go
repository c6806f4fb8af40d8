package portal

import "net"

// Status is the document served by /status and pushed over /status/ws.
type Status struct {
	SSID        string `json:"ssid"`
	Association string `json:"association"`
	LocalIP     string `json:"local_ip"`
	APIP        string `json:"ap_ip"`
	APSSID      string `json:"ap_ssid"`
	State       string `json:"state"`
}

// Status snapshots the radio and the connector.
func (s *Server) Status() Status {
	return Status{
		SSID:        s.radio.SSID(),
		Association: s.radio.Status().String(),
		LocalIP:     ipString(s.radio.LocalIP()),
		APIP:        ipString(s.radio.APIP()),
		APSSID:      s.config.APSSID,
		State:       s.connector.State().String(),
	}
}

func ipString(ip net.IP) string {
	if len(ip) == 0 {
		return net.IPv4zero.String()
	}
	return ip.String()
}
