// internal/pkg/redis/client.go
package redis

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Client 封装了 go-redis 的 UniversalClient，并管理具名 Lua 脚本
type Client struct {
	client goredis.UniversalClient

	mu      sync.RWMutex
	scripts map[string]*goredis.Script
}

// NewClient 根据地址列表创建客户端；多个地址时自动使用集群模式
func NewClient(ctx context.Context, addrs []string) (*Client, error) {
	rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: addrs})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "ping redis %v", addrs)
	}
	return NewClientWith(rdb), nil
}

// NewClientWith 包装一个已有的客户端
func NewClientWith(rdb goredis.UniversalClient) *Client {
	return &Client{
		client:  rdb,
		scripts: make(map[string]*goredis.Script),
	}
}

// LoadScriptFromContent 注册一个具名脚本，执行时按 SHA 调用，NOSCRIPT 时回退到 EVAL
func (c *Client) LoadScriptFromContent(name, src string) error {
	if src == "" {
		return errors.Errorf("script %q is empty", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[name] = goredis.NewScript(src)
	return nil
}

// RunScript 执行一个已注册的脚本
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("script %q is not loaded", name)
	}
	return script.Run(ctx, c.client, keys, args...).Result()
}

// GetClient 返回底层客户端
func (c *Client) GetClient() goredis.UniversalClient {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}
