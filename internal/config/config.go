/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads the deployment-tunable options of spec.md §6
// from a TOML file via github.com/pelletier/go-toml/v2, merging user
// overrides over compiled-in defaults with github.com/imdario/mergo —
// the same two-library combination the teacher uses for its own
// layered settings (defaults struct + NewConfig override merge in
// pkg/apis/config).
package config

import (
	"os"
	"time"

	"github.com/imdario/mergo"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/tachyon-sched/tachyon/internal/weigher"
)

// AuthStrategy selects the authentication collaborator contract.
type AuthStrategy string

const (
	AuthKeystone AuthStrategy = "keystone"
	AuthNoAuth   AuthStrategy = "noauth"
)

// GraphStore holds the store.Store connection and retry envelope.
type GraphStore struct {
	Endpoint        string `toml:"endpoint"`
	RetryMax        int    `toml:"retry_max"`
	RetryBackoffMs  int    `toml:"retry_backoff_ms"`
}

// Candidates holds planner-facing defaults.
type Candidates struct {
	DefaultLimit int `toml:"default_limit"`
}

// Simulation holds C8's operator-tunable knobs.
type Simulation struct {
	DefaultTTLSeconds  int `toml:"default_ttl_seconds"`
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
}

// WeigherMultipliers mirrors internal/weigher.Multipliers with TOML
// tags, since that package stays free of an encoding dependency.
type WeigherMultipliers struct {
	RAM                     float64 `toml:"ram_multiplier"`
	CPU                     float64 `toml:"cpu_multiplier"`
	Disk                    float64 `toml:"disk_multiplier"`
	IOOps                   float64 `toml:"io_ops_multiplier"`
	PCI                     float64 `toml:"pci_multiplier"`
	TraitAffinity           float64 `toml:"trait_affinity_multiplier"`
	ServerGroupSoftAffinity float64 `toml:"server_group_soft_affinity_multiplier"`
	CrossCell               float64 `toml:"cross_cell_multiplier"`
	BuildFailure            float64 `toml:"build_failure_multiplier"`
	HypervisorVersion       float64 `toml:"hypervisor_version_multiplier"`
}

// ToWeigherMultipliers converts the TOML-tagged shape into
// internal/weigher's plain Multipliers struct.
func (w WeigherMultipliers) ToWeigherMultipliers() weigher.Multipliers {
	return weigher.Multipliers(w)
}

// Config is the full recognized configuration table of spec.md §6.
// Unrecognized TOML keys are ignored by go-toml/v2's default decode
// behavior, matching "others ignored" in the spec's wording.
type Config struct {
	AuthStrategy      AuthStrategy       `toml:"auth_strategy"`
	GraphStore        GraphStore         `toml:"graph_store"`
	Candidates        Candidates         `toml:"candidates"`
	Simulation        Simulation         `toml:"simulation"`
	Weigher           WeigherMultipliers `toml:"weigher"`
	StandardTraitsSrc string             `toml:"standard_traits_source"`
}

// Defaults returns the compiled-in configuration a deployment starts
// from before a config file is merged over it.
func Defaults() Config {
	return Config{
		AuthStrategy: AuthNoAuth,
		GraphStore: GraphStore{
			RetryMax:       3,
			RetryBackoffMs: 250,
		},
		Candidates: Candidates{DefaultLimit: 10},
		Simulation: Simulation{
			DefaultTTLSeconds:    900,
			SweepIntervalSeconds: 60,
		},
		Weigher: WeigherMultipliers{
			RAM: 1, CPU: 1, Disk: 1,
			IOOps: 1, PCI: 0.5, TraitAffinity: 1,
			ServerGroupSoftAffinity: 1, CrossCell: 1,
			BuildFailure: 1, HypervisorVersion: 0.1,
		},
		StandardTraitsSrc: "tachyon-standard-traits-v1",
	}
}

// SimulationDefaultTTL is Simulation.DefaultTTLSeconds as a
// time.Duration, the shape internal/simulation.Create expects.
func (c Config) SimulationDefaultTTL() time.Duration {
	return time.Duration(c.Simulation.DefaultTTLSeconds) * time.Second
}

// SweepInterval is Simulation.SweepIntervalSeconds as a time.Duration.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.Simulation.SweepIntervalSeconds) * time.Second
}

// Load reads path (TOML) and merges it over Defaults(); a missing file
// is not an error (the process runs on defaults alone, same as the
// teacher's optional ConfigMap-backed settings).
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, err
	}

	var override Config
	if err := toml.Unmarshal(data, &override); err != nil {
		return Config{}, err
	}
	if err := mergo.Merge(&cfg, override, mergo.WithOverride); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
