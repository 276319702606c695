// Copyright 2026 Red Hat
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pvefleet/internal/constants"
)

// Config holds the complete invocation configuration.
type Config struct {
	// NodeScoped flips positional identifiers from VMIDs to node names.
	NodeScoped bool `mapstructure:"node"`
	// Sync forces strictly sequential dispatch in resolver order.
	Sync bool `mapstructure:"sync"`
	// SkipConfirm bypasses the destroy confirmation prompt. Ignored for
	// node-scoped destroys, which always prompt.
	SkipConfirm bool `mapstructure:"skip-confirm"`

	// Snapshot metadata.
	SnapshotName        string `mapstructure:"name"`
	SnapshotDescription string `mapstructure:"description"`
	// Force removes a snapshot from config even when disk snapshot
	// removal fails.
	Force bool `mapstructure:"force"`

	// Destroy options, each inverted to an on-by-default remote flag.
	DoNotPurgeJobs                bool `mapstructure:"do-not-purge-jobs"`
	DoNotDestroyUnreferencedDisks bool `mapstructure:"do-not-destroy-unreferenced-disks"`

	// HAState is the desired HA state for ha-set.
	HAState string `mapstructure:"ha-state"`

	Verbose      bool   `mapstructure:"verbose"`
	PveshBinary  string `mapstructure:"pvesh-binary"`
	AuditEnabled bool   `mapstructure:"audit"`
	AuditDBPath  string `mapstructure:"audit-db"`
}

// SetDefaults registers Viper defaults.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("node", false)
	v.SetDefault("sync", false)
	v.SetDefault("skip-confirm", false)
	v.SetDefault("name", "")
	v.SetDefault("description", "")
	v.SetDefault("force", false)
	v.SetDefault("do-not-purge-jobs", false)
	v.SetDefault("do-not-destroy-unreferenced-disks", false)
	v.SetDefault("ha-state", "")
	v.SetDefault("verbose", false)
	v.SetDefault("pvesh-binary", constants.DefaultPveshBinary)
	v.SetDefault("audit", false)
	v.SetDefault("audit-db", constants.DefaultAuditDBPath)
}

// BindFlags registers the shared flag surface on the given command.
func BindFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.Bool("node", false, "Treat ids as node names")
	f.Bool("sync", false, "Run commands synchronously")
	f.Bool("skip-confirm", false, "On destroy, skip confirm")
	f.Bool("do-not-purge-jobs", false, "On destroy, skip purging from job configurations")
	f.Bool("do-not-destroy-unreferenced-disks", false, "On destroy, skip destroying unreferenced disks")
	f.String("name", "", "On snapshot, saves a name. Required for snapshot")
	f.String("description", "", "On snapshot, saves a description")
	f.Bool("force", false, "On delsnapshot, remove from config even if removing disk snapshots fails")
	f.String("ha-state", "", "On ha-set, desired state (started/stopped/disabled/ignored)")
	f.Bool("verbose", false, "Enable verbose output")
	f.String("pvesh-binary", "", "Path to the pvesh binary")
	f.Bool("audit", false, "Record invocation outcomes to the audit database")
	f.String("audit-db", "", "Path to the audit database")
	f.String("config", "", "Path to YAML config file")
}

// Load builds the configuration from flags, environment variables, config
// file, and defaults using the Viper priority chain:
// flags > env > file > defaults.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	bindStringIfSet(v, cmd, "name")
	bindStringIfSet(v, cmd, "description")
	bindStringIfSet(v, cmd, "ha-state")
	bindStringIfSet(v, cmd, "pvesh-binary")
	bindStringIfSet(v, cmd, "audit-db")
	bindBoolIfSet(v, cmd, "node")
	bindBoolIfSet(v, cmd, "sync")
	bindBoolIfSet(v, cmd, "skip-confirm")
	bindBoolIfSet(v, cmd, "force")
	bindBoolIfSet(v, cmd, "do-not-purge-jobs")
	bindBoolIfSet(v, cmd, "do-not-destroy-unreferenced-disks")
	bindBoolIfSet(v, cmd, "verbose")
	bindBoolIfSet(v, cmd, "audit")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// bindStringIfSet sets a Viper key from a Cobra flag only when the flag
// was explicitly provided.
func bindStringIfSet(v *viper.Viper, cmd *cobra.Command, name string) {
	if cmd.Flags().Changed(name) {
		val, _ := cmd.Flags().GetString(name)
		v.Set(name, val)
	}
}

func bindBoolIfSet(v *viper.Viper, cmd *cobra.Command, name string) {
	if cmd.Flags().Changed(name) {
		val, _ := cmd.Flags().GetBool(name)
		v.Set(name, val)
	}
}
