// internal/pkg/nacos/client.go
package nacos

import (
	"fmt"
	"net"
	"strconv"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/rs/zerolog/log"
)

const defaultGroup = "DEFAULT_GROUP"

// Client 封装 Nacos 命名客户端，负责注册本服务和发现银行模拟器
type Client struct {
	naming naming_client.INamingClient
	group  string
}

// NewClient 连接 Nacos。serverAddrs 的每一项格式为 "host:port"
func NewClient(serverAddrs []string, namespace, group string) (*Client, error) {
	if len(serverAddrs) == 0 {
		return nil, fmt.Errorf("nacos: no server address configured")
	}
	if group == "" {
		group = defaultGroup
	}
	if namespace == "" {
		log.Warn().Msg("nacos namespace is empty, using the public namespace")
	}

	serverConfigs := make([]constant.ServerConfig, 0, len(serverAddrs))
	for _, addr := range serverAddrs {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid nacos address %q: %w", addr, err)
		}
		port, err := strconv.ParseUint(portStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid port in nacos address %q: %w", addr, err)
		}
		serverConfigs = append(serverConfigs, *constant.NewServerConfig(host, port))
	}

	clientConfig := *constant.NewClientConfig(
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir("/tmp/nacos/log"),
		constant.WithCacheDir("/tmp/nacos/cache"),
		constant.WithLogLevel("warn"),
		constant.WithNamespaceId(namespace),
	)

	naming, err := clients.NewNamingClient(vo.NacosClientParam{
		ClientConfig:  &clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create nacos naming client: %w", err)
	}

	log.Info().Strs("servers", serverAddrs).Str("group", group).Msg("connected to nacos")
	return &Client{naming: naming, group: group}, nil
}

// Register 以临时实例注册，心跳断开后 Nacos 会自动摘除
func (c *Client) Register(serviceName, ip string, port int) error {
	ok, err := c.naming.RegisterInstance(vo.RegisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Weight:      10,
		Enable:      true,
		Healthy:     true,
		Ephemeral:   true,
		GroupName:   c.group,
	})
	if err != nil {
		return fmt.Errorf("failed to register %s with nacos: %w", serviceName, err)
	}
	if !ok {
		return fmt.Errorf("nacos rejected registration of %s", serviceName)
	}
	log.Info().Str("service", serviceName).Str("ip", ip).Int("port", port).Msg("registered to nacos")
	return nil
}

func (c *Client) Deregister(serviceName, ip string, port int) error {
	_, err := c.naming.DeregisterInstance(vo.DeregisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Ephemeral:   true,
		GroupName:   c.group,
	})
	if err != nil {
		return fmt.Errorf("failed to deregister %s from nacos: %w", serviceName, err)
	}
	log.Info().Str("service", serviceName).Msg("deregistered from nacos")
	return nil
}

// DiscoverServiceInstance 用 Nacos 内置的负载均衡挑一个健康实例
func (c *Client) DiscoverServiceInstance(serviceName string) (string, int, error) {
	instance, err := c.naming.SelectOneHealthyInstance(vo.SelectOneHealthInstanceParam{
		ServiceName: serviceName,
		GroupName:   c.group,
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to discover a healthy %s instance: %w", serviceName, err)
	}
	if instance == nil {
		return "", 0, fmt.Errorf("no healthy %s instance available", serviceName)
	}
	return instance.Ip, int(instance.Port), nil
}
