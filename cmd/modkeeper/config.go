package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/modkeeper/internal/domain/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create and inspect modkeeper settings",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a settings file with the default values",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Long: `Print the effective settings after the settings file and MODKEEPER_*
environment variables have been applied.`,
	RunE: runConfigShow,
}

var configInitPath string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)
	configInitCmd.Flags().StringVar(&configInitPath, "path", config.FileName+".yaml", "Where to write the settings file")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	if err := config.WriteDefault(configInitPath); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), okLine("Wrote "+configInitPath))
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	settings, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	data, err := settings.YAML()
	if err != nil {
		return err
	}
	if f := settings.File(); f != "" {
		fmt.Fprintln(cmd.OutOrStdout(), styles.Muted.Render("# "+f))
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
