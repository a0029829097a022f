package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "STRATA"

// Env is the process environment relevant to strata.
type Env struct {
	DataDir    string // STRATA_DATA_DIR
	TraceLevel string // STRATA_TRACE_LEVEL
	Jobs       int    // STRATA_JOBS
}

// LoadEnv reads STRATA_* variables.
func LoadEnv() Env {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("jobs", 0)
	return Env{
		DataDir:    strings.TrimSpace(v.GetString("data_dir")),
		TraceLevel: strings.TrimSpace(v.GetString("trace_level")),
		Jobs:       v.GetInt("jobs"),
	}
}
