package job

import (
	"errors"
	"time"
)

// MinLease is the shortest lease a running transfer job is granted.
const MinLease = time.Second

// ErrInvalidLease indicates the configured lease is not positive.
var ErrInvalidLease = errors.New("job lease must be positive")

// LeasePolicy decides how long a running transfer job may go without renewing its lease before
// the reaper treats its worker as gone. Every checkpoint and heartbeat renews the full lease.
type LeasePolicy struct {
	lease   time.Duration
	clamped bool
}

// NewLeasePolicy builds a policy granting lease per checkpoint. Leases shorter than MinLease are
// raised to MinLease; sub-second precision is dropped.
func NewLeasePolicy(lease time.Duration) (*LeasePolicy, error) {
	if lease <= 0 {
		return nil, ErrInvalidLease
	}
	p := &LeasePolicy{lease: lease.Truncate(time.Second)}
	if p.lease < MinLease {
		p.lease = MinLease
		p.clamped = true
	}
	return p, nil
}

// Lease returns the duration granted on start and on every checkpoint.
func (p *LeasePolicy) Lease() time.Duration {
	if p == nil {
		return MinLease
	}
	return p.lease
}

// Clamped reports whether the configured lease was raised to MinLease.
func (p *LeasePolicy) Clamped() bool {
	return p != nil && p.clamped
}

// HeartbeatInterval is how often a running job renews its lease, three times per lease.
func (p *LeasePolicy) HeartbeatInterval() time.Duration {
	return p.Lease() / 3
}
