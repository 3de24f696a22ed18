package store

import (
	"context"
	"net"
	"strconv"
	"time"

	as "github.com/aerospike/aerospike-client-go/v7"
	"github.com/aerospike/aerospike-client-go/v7/types"

	"github.com/git-hulk/go-redlock/redlock/node"
)

const (
	aerospikeSet      = "redlock"
	aerospikeTokenBin = "token"
)

// Aerospike implements node.Node on one Aerospike cluster. Keys live in the
// "redlock" set of namespace and expire through the record TTL, which has a
// one second granularity. Deletes are guarded by the record generation.
type Aerospike struct {
	name      string
	client    *as.Client
	namespace string
}

func NewAerospike(name string, client *as.Client, namespace string) *Aerospike {
	return &Aerospike{
		name:      name,
		client:    client,
		namespace: namespace,
	}
}

func (a *Aerospike) Name() string {
	return a.name
}

func (a *Aerospike) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl < time.Millisecond {
		return false, node.ErrInvalidTTL
	}
	k, err := as.NewKey(a.namespace, aerospikeSet, key)
	if err != nil {
		return false, err
	}

	policy := as.NewWritePolicy(0, uint32(ttlSeconds(ttl)))
	policy.RecordExistsAction = as.CREATE_ONLY
	if err := applyDeadline(ctx, &policy.BasePolicy); err != nil {
		return false, err
	}
	if err := a.client.PutBins(policy, k, as.NewBin(aerospikeTokenBin, value)); err != nil {
		if err.Matches(types.KEY_EXISTS_ERROR) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (a *Aerospike) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	k, err := as.NewKey(a.namespace, aerospikeSet, key)
	if err != nil {
		return false, err
	}

	readPolicy := as.NewPolicy()
	if err := applyDeadline(ctx, readPolicy); err != nil {
		return false, err
	}
	record, err := a.client.Get(readPolicy, k, aerospikeTokenBin)
	if err != nil {
		if err.Matches(types.KEY_NOT_FOUND_ERROR) {
			return false, nil
		}
		return false, err
	}
	if token, _ := record.Bins[aerospikeTokenBin].(string); token != value {
		return false, nil
	}

	// the generation check makes the delete fail if the record was rewritten
	// since it was read
	policy := as.NewWritePolicy(record.Generation, 0)
	policy.GenerationPolicy = as.EXPECT_GEN_EQUAL
	if err := applyDeadline(ctx, &policy.BasePolicy); err != nil {
		return false, err
	}
	existed, err := a.client.Delete(policy, k)
	if err != nil {
		if err.Matches(types.GENERATION_ERROR, types.KEY_NOT_FOUND_ERROR) {
			return false, nil
		}
		return false, err
	}
	return existed, nil
}

// applyDeadline maps the context deadline on the policy timeout, the client
// does not take a context.
func applyDeadline(ctx context.Context, policy *as.BasePolicy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		policy.TotalTimeout = time.Until(deadline)
		policy.MaxRetries = 0
	}
	return nil
}

func (a *Aerospike) Ping(_ context.Context) error {
	if !a.client.IsConnected() {
		return ErrAerospikeDisconnected
	}
	return nil
}

func (a *Aerospike) Close() error {
	a.client.Close()
	return nil
}

// DialAerospike creates one node per host:port seed, each being a separate
// Aerospike cluster, storing keys in namespace.
func DialAerospike(ctx context.Context, hosts []string, namespace string) ([]node.Node, error) {
	return dialAll(ctx, hosts, func(addr string) (node.Node, error) {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, err
		}
		policy := as.NewClientPolicy()
		policy.Timeout = pingTimeout
		policy.FailIfNotConnected = false
		client, aerr := as.NewClientWithPolicy(policy, host, port)
		if aerr != nil {
			return nil, aerr
		}
		return NewAerospike(addr, client, namespace), nil
	})
}
