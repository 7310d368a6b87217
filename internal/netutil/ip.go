// Package netutil resolves the local address the agent publishes from.
package netutil

import (
	"errors"
	"net"
)

// LocalIP returns the first IPv4 address of an active non-loopback
// interface. The HTTP transport reports it in the X-Real-IP header so the
// service can apply subnet-based admission.
func LocalIP() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}

		addresses, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addresses {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}

			if ip == nil || ip.IsLoopback() || ip.To4() == nil {
				continue
			}

			return ip.String(), nil
		}
	}

	return "", errors.New("no active network interface found")
}
