package networkpolicy

import (
	"context"
	"errors"
	"time"

	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/flowcontrol"
	"k8s.io/client-go/util/workqueue"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"
)

const controllerName = "netsec-securitygroup-controller"

// PortClient is the part of the network control plane the controller needs.
type PortClient interface {
	// ListPorts returns every port of the network. It returns ErrMalformedResponse
	// when the control plane answers without a ports list.
	ListPorts(ctx context.Context, networkID string) ([]Port, error)
	// UpdatePort replaces the security groups of the port.
	UpdatePort(ctx context.Context, portID string, securityGroups []string) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithWorkers sets how many networks are reconciled concurrently within a pass.
func WithWorkers(workers int) Option {
	return func(c *Controller) {
		if workers > 0 {
			c.workers = workers
		}
	}
}

// WithRateLimiter throttles the update calls issued to the control plane.
func WithRateLimiter(limiter flowcontrol.RateLimiter) Option {
	return func(c *Controller) {
		if limiter != nil {
			c.limiter = limiter
		}
	}
}

// WithClock sets the clock driving the interval timer.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// Controller enforces the security groups of the monitored networks.
type Controller struct {
	client    PortClient
	monitored []Policy
	// interval is the time between the start of two consecutive passes.
	interval time.Duration
	workers  int
	limiter  flowcontrol.RateLimiter
	clock    clock.Clock
}

// NewController returns a new *Controller.
func NewController(client PortClient, monitored []Policy, interval time.Duration, opts ...Option) *Controller {
	c := &Controller{
		client:    client,
		monitored: monitored,
		interval:  interval,
		workers:   1,
		limiter:   flowcontrol.NewFakeAlwaysRateLimiter(),
		clock:     clock.RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SyncResult counts what happened during a pass.
type SyncResult struct {
	Networks       int
	NetworksFailed int
	Ports          int
	PortsSkipped   int
	PortsInSync    int
	PortsUpdated   int
	PortsFailed    int
}

func (r *SyncResult) add(o SyncResult) {
	r.Networks += o.Networks
	r.NetworksFailed += o.NetworksFailed
	r.Ports += o.Ports
	r.PortsSkipped += o.PortsSkipped
	r.PortsInSync += o.PortsInSync
	r.PortsUpdated += o.PortsUpdated
	r.PortsFailed += o.PortsFailed
}

// Run will not return until ctx is cancelled. A pass starts right away and then
// every interval. The timer for the next pass is armed before a pass starts, so a
// slow pass shortens the wait that follows it instead of delaying the schedule.
func (c *Controller) Run(ctx context.Context) {
	defer utilruntime.HandleCrash()

	klog.Infof("Starting controller %s", controllerName)
	defer klog.Infof("Shutting down controller %s", controllerName)

	klog.InfoS("Monitoring networks", "networks", len(c.monitored), "interval", c.interval, "workers", c.workers)
	backoff := wait.NewJitteredBackoffManager(c.interval, 0, c.clock)
	wait.BackoffUntil(func() {
		c.Sync(ctx)
	}, backoff, false, ctx.Done())
}

// Sync runs one reconciliation pass over all the monitored networks.
// Failures are logged and counted, they never abort the pass.
func (c *Controller) Sync(ctx context.Context) SyncResult {
	startTime := c.clock.Now()
	klog.V(2).Info("Performing scan")

	results := make([]SyncResult, len(c.monitored))
	workqueue.ParallelizeUntil(ctx, c.workers, len(c.monitored), func(piece int) {
		results[piece] = c.syncNetwork(ctx, c.monitored[piece])
	})

	var total SyncResult
	for _, r := range results {
		total.add(r)
	}

	syncPassesTotal.Inc()
	syncPassDuration.Observe(c.clock.Since(startTime).Seconds())
	klog.V(2).InfoS("Finished scan", "duration", c.clock.Since(startTime),
		"networks", total.Networks, "networksFailed", total.NetworksFailed,
		"ports", total.Ports, "updated", total.PortsUpdated, "failed", total.PortsFailed)
	return total
}

func (c *Controller) syncNetwork(ctx context.Context, policy Policy) SyncResult {
	result := SyncResult{Networks: 1}
	klog.V(2).InfoS("Processing network", "network", policy.NetworkID)

	ports, err := c.client.ListPorts(ctx, policy.NetworkID)
	if err != nil {
		result.NetworksFailed++
		if errors.Is(err, ErrMalformedResponse) {
			klog.ErrorS(err, "Unexpected response listing ports, skipping network", "network", policy.NetworkID)
			networkSyncErrorsTotal.WithLabelValues(policy.NetworkID, "malformed").Inc()
			return result
		}
		klog.ErrorS(err, "Failed to list ports, skipping network", "network", policy.NetworkID)
		networkSyncErrorsTotal.WithLabelValues(policy.NetworkID, "list").Inc()
		return result
	}
	klog.V(2).InfoS("Found ports on network", "network", policy.NetworkID, "ports", len(ports))

	for _, port := range ports {
		result.Ports++
		if reason := checkEligibility(port, policy); reason != eligible {
			klog.V(4).InfoS("Skipping port", "network", policy.NetworkID, "port", port.ID, "owner", port.Owner, "reason", string(reason))
			portsSkippedTotal.WithLabelValues(policy.NetworkID, string(reason)).Inc()
			result.PortsSkipped++
			continue
		}

		decision, needed := Correct(port, policy)
		if !needed {
			klog.V(4).InfoS("Port in sync", "network", policy.NetworkID, "port", port.ID)
			result.PortsInSync++
			continue
		}

		if err := c.apply(ctx, policy, decision); err != nil {
			klog.ErrorS(err, "Failed to update security groups", "network", policy.NetworkID, "port", decision.PortID)
			portUpdatesTotal.WithLabelValues(policy.NetworkID, policy.Mode.String(), "failure").Inc()
			result.PortsFailed++
			continue
		}
		portUpdatesTotal.WithLabelValues(policy.NetworkID, policy.Mode.String(), "success").Inc()
		result.PortsUpdated++
	}
	return result
}

func (c *Controller) apply(ctx context.Context, policy Policy, decision Decision) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	switch policy.Mode {
	case Append:
		klog.InfoS("Appending missing security groups", "network", policy.NetworkID, "port", decision.PortID, "securityGroups", decision.SecurityGroups)
	default:
		klog.InfoS("Overriding security groups", "network", policy.NetworkID, "port", decision.PortID, "securityGroups", decision.SecurityGroups)
	}
	return c.client.UpdatePort(ctx, decision.PortID, decision.SecurityGroups)
}
