package store

import "errors"

var (
	ErrNoNodes         = errors.New("no node address given")
	ErrNoReachableNode = errors.New("no node is reachable")

	ErrAerospikeDisconnected = errors.New("aerospike client is not connected")
)
