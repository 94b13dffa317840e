package observability

import (
	"net"
	"strconv"
)

// GetOutboundIP returns the local IP used to reach the internet, or "" when
// there is no route.
func GetOutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer func() {
		_ = conn.Close()
	}()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}

// Instance is the host:port label of this process.
func Instance(port int) string {
	ip := GetOutboundIP()
	if port == 0 {
		return ip
	}
	return net.JoinHostPort(ip, strconv.Itoa(port))
}
