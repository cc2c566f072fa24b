package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bizmatters/field-sales/visit-guard/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	Long: `Show visit guard configuration.

Running bare 'visitctl config' is the same as 'visitctl config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func configShowRun() error {
	_, v, err := loadConfig()
	if err != nil {
		return err
	}

	if used := v.ConfigFileUsed(); used != "" {
		info("Config file: %s", used)
	} else {
		info("Config file: (none)")
	}
	fmt.Fprintln(out)

	for _, k := range config.Keys {
		val := fmt.Sprint(v.Get(k.Key))
		if k.Secret {
			val = config.Redact(val)
		}
		fmt.Fprintf(out, "  %-26s %-40s %s\n", k.Key, val, detectSource(v, k))
	}
	return nil
}

// detectSource reports where a setting's effective value came from
func detectSource(v *viper.Viper, k config.KeyInfo) string {
	if _, ok := os.LookupEnv(k.EnvVar); ok {
		return yellow("(env " + k.EnvVar + ")")
	}
	if v.InConfig(k.Key) {
		return cyan("(file)")
	}
	return "(default)"
}
