package leader

import (
	"encoding/json"
	"errors"
	"net"
)

// ID is the JSON payload written to the leader's ZK node, letting
// standby schedulers and clients discover where to reach it.
type ID struct {
	Hostname string `json:"hostname"`
	IP       string `json:"ip"`
	HTTPPort int    `json:"http"`
	Version  string `json:"version"`
}

// NewID builds the encoded identity string a scheduler campaigns
// under: hostname, best-guess routable IP, and the configured HTTP
// API port.
func NewID(hostname string, httpPort int, version string) (string, error) {
	ip, err := listenIP()
	if err != nil {
		return "", err
	}
	id := ID{Hostname: hostname, IP: ip.String(), HTTPPort: httpPort, Version: version}
	encoded, err := json.Marshal(id)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// scoreAddr scores how likely addr is to be a reachable address on
// iface; negative scores are skipped.
func scoreAddr(iface net.Interface, addr net.Addr) (int, net.IP) {
	var ip net.IP
	switch a := addr.(type) {
	case *net.IPNet:
		ip = a.IP
	case *net.IPAddr:
		ip = a.IP
	default:
		return -1, nil
	}

	score := 0
	if ip.To4() != nil {
		score += 300
	}
	if iface.Flags&net.FlagLoopback == 0 && !ip.IsLoopback() {
		score += 100
		if iface.Flags&net.FlagUp != 0 {
			score += 100
		}
	}
	return score, ip
}

// listenIP picks the highest-scoring local address, preferring an
// IPv4 address on an up, non-loopback interface over loopback ones.
func listenIP() (net.IP, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	bestScore := -1
	var bestIP net.IP
	for _, iface := range interfaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if score, ip := scoreAddr(iface, addr); score > bestScore {
				bestScore, bestIP = score, ip
			}
		}
	}

	if bestScore == -1 {
		return nil, errors.New("leader: no routable address found")
	}
	return bestIP, nil
}
