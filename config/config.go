// Package config is the consensus core's runtime parameters (spec.md
// §6), grounded on the teacher's config.Parameters/DefaultParams/Valid
// convention, extended with YAML loading via gopkg.in/yaml.v3 for the
// cmd/consensus entry point.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dagbft/core/block"
)

// Sentinel validation errors, mirroring the teacher's config package.
var (
	ErrParametersInvalid = errors.New("invalid consensus parameters")
	ErrInvalidGCDepth    = errors.New("gc_depth must be >= 1")
	ErrInvalidRoundBound = errors.New("round_bound must be >= 1")
)

// Parameters holds every tunable named across spec.md §4 and §6.
type Parameters struct {
	GCDepth block.Round `yaml:"gc_depth"`

	ProposerMinDelay time.Duration `yaml:"proposer_min_delay"`

	MaxFetchConcurrency int           `yaml:"max_fetch_concurrency"`
	MaxFetchAttempts    int           `yaml:"max_fetch_attempts"`
	FetchTimeout        time.Duration `yaml:"fetch_timeout"`

	RoundBound   uint64        `yaml:"round_bound"`
	WarnSkew     time.Duration `yaml:"warn_skew"`
	RejectSkew   time.Duration `yaml:"reject_skew"`

	MaxLoggedDiscrepancies int  `yaml:"max_logged_discrepancies"`
	ComparingStoreEnabled  bool `yaml:"comparing_store_enabled"`

	CommitLeaderSkipEnabled  bool `yaml:"commit_leader_skip_enabled"`
	ReputationScoringEnabled bool `yaml:"reputation_scoring_enabled"`
}

// DefaultParams returns the defaults named in spec.md §6 ("GC_depth ...
// default ~60", "small_bound (e.g., 500)", "tens of milliseconds").
func DefaultParams() Parameters {
	return Parameters{
		GCDepth:                  60,
		ProposerMinDelay:         50 * time.Millisecond,
		MaxFetchConcurrency:      8,
		MaxFetchAttempts:         3,
		FetchTimeout:             2 * time.Second,
		RoundBound:               500,
		WarnSkew:                 2 * time.Second,
		RejectSkew:               10 * time.Second,
		MaxLoggedDiscrepancies:   100,
		ComparingStoreEnabled:    false,
		CommitLeaderSkipEnabled:  true,
		ReputationScoringEnabled: false,
	}
}

// Valid reports whether p is internally consistent.
func (p Parameters) Valid() error {
	switch {
	case p.GCDepth < 1:
		return fmt.Errorf("%w: %v", ErrInvalidGCDepth, p.GCDepth)
	case p.RoundBound < 1:
		return fmt.Errorf("%w: %d", ErrInvalidRoundBound, p.RoundBound)
	case p.MaxFetchConcurrency < 1:
		return fmt.Errorf("%w: max_fetch_concurrency must be >= 1", ErrParametersInvalid)
	case p.MaxFetchAttempts < 1:
		return fmt.Errorf("%w: max_fetch_attempts must be >= 1", ErrParametersInvalid)
	case p.RejectSkew < p.WarnSkew:
		return fmt.Errorf("%w: reject_skew must be >= warn_skew", ErrParametersInvalid)
	default:
		return nil
	}
}

// Load reads and validates Parameters from a YAML file at path.
func Load(path string) (Parameters, error) {
	p := DefaultParams()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := p.Valid(); err != nil {
		return p, err
	}
	return p, nil
}
