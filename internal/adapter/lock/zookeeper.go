package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"go.uber.org/zap"
)

const lockRoot = "/stock_locks"

// ZooKeeperLocker queues lock holders as ephemeral sequential nodes under
// /stock_locks/<key>. The lowest sequence holds the lock; the rest watch their
// predecessor.
type ZooKeeperLocker struct {
	conn   *zk.Conn
	logger *zap.Logger
}

func DialZooKeeper(servers []string, sessionTimeout time.Duration) (*zk.Conn, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect zookeeper: %w", err)
	}
	return conn, nil
}

func NewZooKeeperLocker(conn *zk.Conn, logger *zap.Logger) *ZooKeeperLocker {
	return &ZooKeeperLocker{conn: conn, logger: logger}
}

func (z *ZooKeeperLocker) ensurePath(path string) error {
	current := ""
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		current += "/" + part
		_, err := z.conn.Create(current, nil, 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return fmt.Errorf("create %s: %w", current, err)
		}
	}
	return nil
}

func (z *ZooKeeperLocker) Lock(ctx context.Context, key string) (func(), error) {
	path := lockRoot + "/" + strings.ReplaceAll(key, "/", "_")
	if err := z.ensurePath(path); err != nil {
		return nil, err
	}

	node, err := z.conn.CreateProtectedEphemeralSequential(path+"/lock-", nil, zk.WorldACL(zk.PermAll))
	if err != nil {
		return nil, fmt.Errorf("create lock node: %w", err)
	}
	unlock := func() {
		if err := z.conn.Delete(node, -1); err != nil && !errors.Is(err, zk.ErrNoNode) {
			z.logger.Warn("Failed to delete lock node", zap.String("node", node), zap.Error(err))
		}
	}
	name := strings.TrimPrefix(node, path+"/")

	for {
		children, _, err := z.conn.Children(path)
		if err != nil {
			unlock()
			return nil, fmt.Errorf("list lock nodes: %w", err)
		}
		sortBySequence(children)

		idx := -1
		for i, child := range children {
			if child == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			unlock()
			return nil, fmt.Errorf("lock node %s disappeared", node)
		}
		if idx == 0 {
			return unlock, nil
		}

		exists, _, events, err := z.conn.ExistsW(path + "/" + children[idx-1])
		if err != nil {
			unlock()
			return nil, fmt.Errorf("watch previous lock node: %w", err)
		}
		if !exists {
			continue
		}

		select {
		case <-events:
		case <-ctx.Done():
			unlock()
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		}
	}
}

// sortBySequence orders protected node names by their 10 digit sequence
// suffix; the guid prefix would otherwise dominate a plain string sort.
func sortBySequence(names []string) {
	seq := func(s string) string {
		if len(s) < 10 {
			return s
		}
		return s[len(s)-10:]
	}
	sort.Slice(names, func(i, j int) bool {
		return seq(names[i]) < seq(names[j])
	})
}
