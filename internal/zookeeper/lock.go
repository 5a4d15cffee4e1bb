// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"

	"fulfillment/internal/pkg/logger"
)

const (
	lockRoot       = "/distributed_locks" // 所有分布式锁的根节点
	lockNodePrefix = "lock-"
	sequenceDigits = 10 // ZooKeeper 顺序节点的后缀长度
)

// Connect 连接 ZooKeeper 并等待会话建立
func Connect(ctx context.Context, servers []string, sessionTimeout time.Duration) (*zk.Conn, error) {
	conn, events, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, errors.Wrapf(err, "connect zookeeper %v", servers)
	}
	for {
		select {
		case ev := <-events:
			if ev.State == zk.StateHasSession {
				logger.Ctx(ctx).Info().Strs("servers", servers).Msg("Connected to ZooKeeper")
				return conn, nil
			}
		case <-ctx.Done():
			conn.Close()
			return nil, errors.Wrap(ctx.Err(), "wait for zookeeper session")
		}
	}
}

// DistributedLock 是基于临时顺序节点的互斥锁
type DistributedLock struct {
	conn     *zk.Conn
	path     string        // 锁的路径，例如 /distributed_locks/inventory-seed
	timeout  time.Duration // 等待锁的最长时间
	lockNode string        // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建锁实例，并确保锁的父节点存在
func NewDistributedLock(conn *zk.Conn, resourceID string, timeout time.Duration) (*DistributedLock, error) {
	lockPath := lockRoot + "/" + resourceID
	for _, p := range []string{lockRoot, lockPath} {
		_, err := conn.Create(p, nil, 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return nil, errors.Wrapf(err, "create lock node %s", p)
		}
	}
	return &DistributedLock{conn: conn, path: lockPath, timeout: timeout}, nil
}

// Lock 阻塞直到获取锁、超时或 ctx 取消
func (l *DistributedLock) Lock(ctx context.Context) error {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/"+lockNodePrefix, nil, zk.WorldACL(zk.PermAll))
	if err != nil {
		return errors.Wrap(err, "create sequential node")
	}
	l.lockNode = nodePath
	myNode := strings.TrimPrefix(nodePath, l.path+"/")

	deadline := time.NewTimer(l.timeout)
	defer deadline.Stop()

	for {
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			return l.abandon(errors.Wrap(err, "list lock nodes"))
		}

		prev, isOwner := predecessor(children, myNode)
		if isOwner {
			return nil
		}
		if prev == "" {
			return l.abandon(errors.Errorf("lock node %s disappeared", myNode))
		}

		exists, _, eventChan, err := l.conn.ExistsW(l.path + "/" + prev)
		if err != nil {
			return l.abandon(errors.Wrap(err, "watch previous node"))
		}
		if !exists {
			continue
		}

		select {
		case <-eventChan:
		case <-deadline.C:
			return l.abandon(errors.New("timeout waiting for lock"))
		case <-ctx.Done():
			return l.abandon(ctx.Err())
		}
	}
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return errors.Wrap(err, "delete lock node")
	}
	l.lockNode = ""
	return nil
}

// abandon 删除自己的节点后返回 err，避免挡住后面的等待者
func (l *DistributedLock) abandon(err error) error {
	if uerr := l.Unlock(); uerr != nil {
		return errors.Wrapf(err, "also failed to remove lock node: %v", uerr)
	}
	return err
}

// predecessor 按序号排序子节点，返回紧挨在 self 之前的节点。
// self 序号最小时 isOwner 为 true；self 不在列表中时两个返回值都为零值。
// 受保护节点带有 GUID 前缀，所以只能按后缀序号比较。
func predecessor(children []string, self string) (prev string, isOwner bool) {
	sorted := make([]string, 0, len(children))
	for _, c := range children {
		if _, ok := sequence(c); ok {
			sorted = append(sorted, c)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		a, _ := sequence(sorted[i])
		b, _ := sequence(sorted[j])
		return a < b
	})
	for i, c := range sorted {
		if c != self {
			continue
		}
		if i == 0 {
			return "", true
		}
		return sorted[i-1], false
	}
	return "", false
}

func sequence(node string) (int64, bool) {
	if len(node) < sequenceDigits {
		return 0, false
	}
	n, err := strconv.ParseInt(node[len(node)-sequenceDigits:], 10, 64)
	return n, err == nil
}
