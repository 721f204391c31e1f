// Package config provides the command that prints or writes the default
// configuration.
package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/rtsync/internal/conf"
)

// Command creates the config command.
func Command(v *viper.Viper) *cobra.Command {
	var write string
	var effective bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print or write the configuration",
		Long: "Prints the default configuration. With --write the default is saved to the given path. " +
			"With --effective the merged configuration from file, environment and flags is printed, " +
			"or saved when combined with --write.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch {
			case effective:
				configFile, _ := cmd.Flags().GetString("config")
				settings, err := conf.Load(v, configFile)
				if err != nil {
					return err
				}
				if write != "" {
					if err := conf.SaveYAMLConfig(write, settings); err != nil {
						return err
					}
					_, err := fmt.Fprintf(out, "effective configuration written to %s\n", write)
					return err
				}
				data, err := conf.MarshalYAML(settings)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			case write != "":
				if err := conf.WriteDefault(write); err != nil {
					return err
				}
				_, err := fmt.Fprintf(out, "default configuration written to %s\n", write)
				return err
			default:
				_, err := out.Write(conf.DefaultConfig())
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&write, "write", "w", "", "Write the default configuration to this path")
	cmd.Flags().BoolVar(&effective, "effective", false, "Print the effective configuration")
	return cmd
}
