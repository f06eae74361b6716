package scheduler

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mockbroker/research-engine/internal/bots"
)

//go:embed jobs.yaml
var jobsYAML []byte

// Region labels used by job selectors.
const (
	RegionUS          = "us"
	RegionUKEU        = "uk_eu"
	RegionCrypto      = "crypto"
	RegionAsianADR    = "asian_adr"
	RegionCommodityFX = "commodity_fx"
)

var knownRegions = map[string]struct{}{
	RegionUS:          {},
	RegionUKEU:        {},
	RegionCrypto:      {},
	RegionAsianADR:    {},
	RegionCommodityFX: {},
}

var knownBots = map[string]struct{}{
	bots.NameNews:         {},
	bots.NameEarnings:     {},
	bots.NameMacro:        {},
	bots.NameInsider:      {},
	bots.NameFundamentals: {},
	bots.NameTechnicals:   {},
	bots.NameAnalyst:      {},
}

// defaultSymbolLimit is the soft per-job symbol budget. Jobs over it are
// truncated with a warning rather than run long.
const defaultSymbolLimit = 200

// selector matches assets by region and tier. Empty fields match all.
type selector struct {
	Region string `yaml:"region,omitempty"`
	Tiers  []int  `yaml:"tiers,omitempty"`
}

// jobSpec is one row of the embedded job table.
type jobSpec struct {
	Name     string     `yaml:"name"`
	Time     string     `yaml:"time"`
	Days     []string   `yaml:"days"`
	Limit    int        `yaml:"limit,omitempty"`
	Select   []selector `yaml:"select"`
	Override []string   `yaml:"override,omitempty"`
	Priority []string   `yaml:"priority,omitempty"`
}

// cronExpr renders the job's schedule as a standard 5-field cron
// expression.
func (j jobSpec) cronExpr() (string, error) {
	parts := strings.SplitN(j.Time, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("job %s: bad time %q", j.Name, j.Time)
	}
	hour, minute := parts[0], parts[1]

	days := "*"
	if len(j.Days) > 0 && !strings.EqualFold(j.Days[0], "daily") {
		days = strings.ToUpper(strings.Join(j.Days, ","))
	}
	return fmt.Sprintf("%s %s * * %s", minute, hour, days), nil
}

func (j jobSpec) symbolLimit() int {
	if j.Limit > 0 {
		return j.Limit
	}
	return defaultSymbolLimit
}

// loadJobs parses and validates the embedded job table.
func loadJobs() ([]jobSpec, error) {
	var table struct {
		Jobs []jobSpec `yaml:"jobs"`
	}
	if err := yaml.Unmarshal(jobsYAML, &table); err != nil {
		return nil, fmt.Errorf("parse job table: %w", err)
	}
	if len(table.Jobs) == 0 {
		return nil, fmt.Errorf("job table is empty")
	}

	seen := make(map[string]struct{}, len(table.Jobs))
	for _, job := range table.Jobs {
		if job.Name == "" {
			return nil, fmt.Errorf("job with empty name")
		}
		if _, dup := seen[job.Name]; dup {
			return nil, fmt.Errorf("duplicate job name %s", job.Name)
		}
		seen[job.Name] = struct{}{}

		if _, err := job.cronExpr(); err != nil {
			return nil, err
		}
		if len(job.Override) > 0 && len(job.Priority) > 0 {
			return nil, fmt.Errorf("job %s: override and priority are mutually exclusive", job.Name)
		}
		if len(job.Select) == 0 {
			return nil, fmt.Errorf("job %s: no asset selectors", job.Name)
		}
		for _, sel := range job.Select {
			if sel.Region != "" {
				if _, ok := knownRegions[sel.Region]; !ok {
					return nil, fmt.Errorf("job %s: unknown region %q", job.Name, sel.Region)
				}
			}
			for _, tier := range sel.Tiers {
				if tier < 1 || tier > 3 {
					return nil, fmt.Errorf("job %s: tier %d out of range", job.Name, tier)
				}
			}
		}
		for _, name := range append(append([]string(nil), job.Override...), job.Priority...) {
			if _, ok := knownBots[name]; !ok {
				return nil, fmt.Errorf("job %s: unknown bot %q", job.Name, name)
			}
		}
	}
	return table.Jobs, nil
}
