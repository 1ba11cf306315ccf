package bootstrap

import "net"

// GetOutboundIP 返回本机访问外网时使用的地址，用于注册到 Nacos。
// UDP 的 Dial 不会真的发包。
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
