// internal/pkg/nacos/client.go
package nacos

import (
	"net"
	"strconv"
	"strings"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"

	"fulfillment/internal/pkg/config"
)

const defaultGroup = "DEFAULT_GROUP"

// Client 封装了 Nacos 命名客户端
type Client struct {
	namingClient naming_client.INamingClient
	groupName    string
}

// NewClient 根据配置创建命名客户端，ServerAddrs 格式为 "ip1:port1,ip2:port2"
func NewClient(cfg config.NacosConfig) (*Client, error) {
	serverConfigs, err := ParseServerConfigs(cfg.ServerAddrs)
	if err != nil {
		return nil, err
	}
	group := cfg.Group
	if group == "" {
		group = defaultGroup
	}
	if cfg.Namespace == "" {
		zlog.Warn().Msg("Nacos namespace is not set, using the public namespace")
	}

	clientConfig := *constant.NewClientConfig(
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir("/tmp/nacos/log"),
		constant.WithCacheDir("/tmp/nacos/cache"),
		constant.WithLogLevel("warn"),
		constant.WithNamespaceId(cfg.Namespace),
	)
	namingClient, err := clients.NewNamingClient(vo.NacosClientParam{
		ClientConfig:  &clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create nacos naming client")
	}
	return &Client{namingClient: namingClient, groupName: group}, nil
}

// ParseServerConfigs 解析逗号分隔的 host:port 列表
func ParseServerConfigs(addrs string) ([]constant.ServerConfig, error) {
	var out []constant.ServerConfig
	for _, addr := range strings.Split(addrs, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid nacos address %q", addr)
		}
		port, err := strconv.ParseUint(portStr, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid port in nacos address %q", addr)
		}
		out = append(out, *constant.NewServerConfig(host, port))
	}
	if len(out) == 0 {
		return nil, errors.New("no nacos server address configured")
	}
	return out, nil
}

// RegisterServiceInstance 以临时实例注册，心跳断开后会自动摘除
func (c *Client) RegisterServiceInstance(serviceName, ip string, port int) error {
	success, err := c.namingClient.RegisterInstance(vo.RegisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Weight:      10,
		Enable:      true,
		Healthy:     true,
		Ephemeral:   true,
		GroupName:   c.groupName,
	})
	if err != nil {
		return errors.Wrap(err, "register service with nacos")
	}
	if !success {
		return errors.Errorf("nacos registration was not successful for service %s", serviceName)
	}
	zlog.Info().Str("service", serviceName).Str("ip", ip).Int("port", port).Msg("Registered to Nacos")
	return nil
}

// DeregisterServiceInstance 从 Nacos 注销一个服务实例
func (c *Client) DeregisterServiceInstance(serviceName, ip string, port int) error {
	_, err := c.namingClient.DeregisterInstance(vo.DeregisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Ephemeral:   true,
		GroupName:   c.groupName,
	})
	if err != nil {
		return errors.Wrap(err, "deregister service from nacos")
	}
	zlog.Info().Str("service", serviceName).Msg("Deregistered from Nacos")
	return nil
}

func (c *Client) Close() {
	c.namingClient.CloseClient()
}
