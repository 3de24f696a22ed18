package store

import (
	"context"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/git-hulk/go-redlock/internal"
	"github.com/git-hulk/go-redlock/redlock/node"
)

const (
	etcdDialTimeout   = 2 * time.Second
	etcdRevokeTimeout = time.Second
)

// Etcd implements node.Node on one independent etcd cluster. Keys are bound
// to a lease so they expire on their own; etcd leases have a granularity of
// one second.
type Etcd struct {
	name   string
	client *clientv3.Client
}

func NewEtcd(name string, client *clientv3.Client) *Etcd {
	return &Etcd{name: name, client: client}
}

func (e *Etcd) Name() string {
	return e.name
}

func (e *Etcd) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl < time.Millisecond {
		return false, node.ErrInvalidTTL
	}
	lease, err := e.client.Grant(ctx, ttlSeconds(ttl))
	if err != nil {
		return false, err
	}

	resp, err := e.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, value, clientv3.WithLease(lease.ID))).
		Commit()
	if err != nil {
		e.revoke(ctx, lease.ID)
		return false, err
	}
	if !resp.Succeeded {
		e.revoke(ctx, lease.ID)
		return false, nil
	}
	return true, nil
}

func (e *Etcd) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	resp, err := e.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(key), "=", value)).
		Then(clientv3.OpGet(key), clientv3.OpDelete(key)).
		Commit()
	if err != nil {
		return false, err
	}
	if !resp.Succeeded {
		return false, nil
	}
	if kvs := resp.Responses[0].GetResponseRange().GetKvs(); len(kvs) > 0 && kvs[0].Lease != 0 {
		e.revoke(ctx, clientv3.LeaseID(kvs[0].Lease))
	}
	return resp.Responses[1].GetResponseDeleteRange().GetDeleted() > 0, nil
}

// revoke drops a lease nobody uses anymore, it would expire anyway.
func (e *Etcd) revoke(ctx context.Context, id clientv3.LeaseID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), etcdRevokeTimeout)
	defer cancel()
	if _, err := e.client.Revoke(ctx, id); err != nil {
		internal.GetLogger().Printf("Failed to revoke lease[%x] on node[%s], err: %v", id, e.name, err)
	}
}

func (e *Etcd) Ping(ctx context.Context) error {
	for _, endpoint := range e.client.Endpoints() {
		if _, err := e.client.Status(ctx, endpoint); err != nil {
			return err
		}
	}
	return nil
}

func (e *Etcd) Close() error {
	return e.client.Close()
}

// DialEtcd creates one node per endpoint, each endpoint must be a separate
// etcd cluster for the quorum to mean anything.
func DialEtcd(ctx context.Context, endpoints []string) ([]node.Node, error) {
	return dialAll(ctx, endpoints, func(endpoint string) (node.Node, error) {
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   []string{endpoint},
			DialTimeout: etcdDialTimeout,
		})
		if err != nil {
			return nil, err
		}
		return NewEtcd(endpoint, client), nil
	})
}
