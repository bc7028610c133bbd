package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/packager"
	"github.com/spf13/cobra"
)

// buildPluginCmd exposes the Plugin Registry & Packaging component (spec
// §4.6) as a CLI surface: packing a plugin directory into a `.gplug`
// archive and installing one into the system plugin directory.
func buildPluginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Pack and install .gplug plugin archives",
	}
	cmd.AddCommand(buildPluginPackCmd(), buildPluginInstallCmd())
	return cmd
}

func buildPluginPackCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "pack <plugin-dir>",
		Short: "Pack a plugin directory into a .gplug archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pluginDir := args[0]
			if output == "" {
				output = filepath.Base(filepath.Clean(pluginDir)) + ".gplug"
			}
			path, err := packager.Pack(pluginDir, output, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output .gplug path (default: <plugin-dir-name>.gplug)")
	return cmd
}

func buildPluginInstallCmd() *cobra.Command {
	var skipVerify bool
	cmd := &cobra.Command{
		Use:   "install <archive.gplug>",
		Short: "Install a .gplug archive into the system plugin directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			manifest, err := packager.Install(args[0], a.layout.SystemPluginsDir(), skipVerify)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %s@%s\n", manifest.ID, manifest.Version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "install even if the manifest integrity hash doesn't match")
	return cmd
}
