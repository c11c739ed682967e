package health

import (
	"context"
	"time"
)

// ConsensusStatus is polled by engine.Engine to answer HealthCheck calls
// for the consensus core specifically (spec.md §4.7's recovery and
// §4.6's liveness bound both have observable health signals: is the
// store reachable, and has a commit landed recently).
type ConsensusStatus struct {
	StoreReachable        func() error
	TimeSinceLastCommit    func() time.Duration
	MaxCommitSilence       time.Duration
}

// ConsensusChecker adapts a ConsensusStatus into a Checker.
type ConsensusChecker struct {
	Status ConsensusStatus
}

func (c *ConsensusChecker) HealthCheck(ctx context.Context) (interface{}, error) {
	start := time.Now()
	checks := make([]Check, 0, 2)
	healthy := true

	if c.Status.StoreReachable != nil {
		checkStart := time.Now()
		err := c.Status.StoreReachable()
		chk := Check{Name: "store_reachable", Healthy: err == nil, Duration: time.Since(checkStart)}
		if err != nil {
			chk.Error = err.Error()
			healthy = false
		}
		checks = append(checks, chk)
	}

	if c.Status.TimeSinceLastCommit != nil && c.Status.MaxCommitSilence > 0 {
		checkStart := time.Now()
		silence := c.Status.TimeSinceLastCommit()
		ok := silence <= c.Status.MaxCommitSilence
		chk := Check{
			Name:     "commit_liveness",
			Healthy:  ok,
			Duration: time.Since(checkStart),
			Details:  map[string]interface{}{"silence_ms": silence.Milliseconds()},
		}
		if !ok {
			chk.Error = "no commit within the configured liveness bound"
			healthy = false
		}
		checks = append(checks, chk)
	}

	return Report{Healthy: healthy, Checks: checks, Duration: time.Since(start)}, nil
}
