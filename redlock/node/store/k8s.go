package store

import (
	"context"
	"time"

	coordinationv1 "k8s.io/api/coordination/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	clientset "k8s.io/client-go/kubernetes"
	coordinationclient "k8s.io/client-go/kubernetes/typed/coordination/v1"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/utils/clock"

	"github.com/git-hulk/go-redlock/redlock/node"
)

// K8s implements node.Node with coordination.k8s.io Lease objects, one
// per resource. The resource must be a valid object name. The apiserver does
// not expire leases, so expiry is judged from RenewTime and the lease
// duration, and every write relies on resourceVersion preconditions.
type K8s struct {
	name      string
	client    clientset.Interface
	namespace string
	clock     clock.PassiveClock
}

func NewK8s(name string, client clientset.Interface, namespace string, c clock.PassiveClock) *K8s {
	if c == nil {
		c = clock.RealClock{}
	}
	return &K8s{
		name:      name,
		client:    client,
		namespace: namespace,
		clock:     c,
	}
}

func (k *K8s) Name() string {
	return k.name
}

func (k *K8s) leases() coordinationclient.LeaseInterface {
	return k.client.CoordinationV1().Leases(k.namespace)
}

func (k *K8s) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl < time.Millisecond {
		return false, node.ErrInvalidTTL
	}
	now := metav1.NewMicroTime(k.clock.Now())
	seconds := int32(ttlSeconds(ttl))
	spec := coordinationv1.LeaseSpec{
		HolderIdentity:       &value,
		LeaseDurationSeconds: &seconds,
		AcquireTime:          &now,
		RenewTime:            &now,
	}

	// 1. create the lease if nobody has it
	_, err := k.leases().Create(ctx, &coordinationv1.Lease{
		ObjectMeta: metav1.ObjectMeta{Name: key, Namespace: k.namespace},
		Spec:       spec,
	}, metav1.CreateOptions{})
	if err == nil {
		return true, nil
	}
	if !errors.IsAlreadyExists(err) {
		return false, err
	}

	// 2. the lease exists, it can only be taken over once expired
	current, err := k.leases().Get(ctx, key, metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if !k.expired(current) {
		return false, nil
	}

	// 3. update with the observed resourceVersion so a concurrent writer wins or we do
	current.Spec = spec
	if _, err := k.leases().Update(ctx, current, metav1.UpdateOptions{}); err != nil {
		if errors.IsConflict(err) || errors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (k *K8s) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	current, err := k.leases().Get(ctx, key, metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if current.Spec.HolderIdentity == nil || *current.Spec.HolderIdentity != value {
		return false, nil
	}

	err = k.leases().Delete(ctx, key, metav1.DeleteOptions{
		Preconditions: &metav1.Preconditions{
			UID:             &current.UID,
			ResourceVersion: &current.ResourceVersion,
		},
	})
	if err != nil {
		if errors.IsNotFound(err) || errors.IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (k *K8s) expired(lease *coordinationv1.Lease) bool {
	spec := lease.Spec
	if spec.HolderIdentity == nil || *spec.HolderIdentity == "" ||
		spec.RenewTime == nil || spec.LeaseDurationSeconds == nil {
		return true
	}
	expiresAt := spec.RenewTime.Add(time.Duration(*spec.LeaseDurationSeconds) * time.Second)
	return !k.clock.Now().Before(expiresAt)
}

func (k *K8s) Ping(_ context.Context) error {
	_, err := k.client.Discovery().ServerVersion()
	return err
}

// DialK8s creates one node per kubeconfig file, each pointing to a separate
// cluster, storing leases in namespace.
func DialK8s(ctx context.Context, kubeconfigs []string, namespace string) ([]node.Node, error) {
	return dialAll(ctx, kubeconfigs, func(path string) (node.Node, error) {
		config, err := clientcmd.BuildConfigFromFlags("", path)
		if err != nil {
			return nil, err
		}
		client, err := clientset.NewForConfig(config)
		if err != nil {
			return nil, err
		}
		return NewK8s(config.Host, client, namespace, clock.RealClock{}), nil
	})
}
