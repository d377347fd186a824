package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/volumed/internal/cli/output"
	"github.com/marmos91/volumed/pkg/config"
	"github.com/marmos91/volumed/pkg/server"
)

var profilesOutput string

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List service profiles",
	Long: `List the service profiles the server can run, with the address each one
binds to under the current configuration.

Examples:
  # Show profiles as a table
  volumed profiles

  # Show profiles as JSON
  volumed profiles --output json`,
	RunE: runProfiles,
}

func init() {
	profilesCmd.Flags().StringVarP(&profilesOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// ProfileInfo describes a registered profile.
type ProfileInfo struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Address     string `json:"address" yaml:"address"`
	Default     bool   `json:"default" yaml:"default"`
}

// ProfileList is the output of the profiles command.
type ProfileList []ProfileInfo

// Headers implements output.TableRenderer.
func (l ProfileList) Headers() []string {
	return []string{"NAME", "ADDRESS", "DEFAULT", "DESCRIPTION"}
}

// Rows implements output.TableRenderer.
func (l ProfileList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, p := range l {
		rows = append(rows, []string{p.Name, p.Address, strconv.FormatBool(p.Default), p.Description})
	}
	return rows
}

func runProfiles(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(profilesOutput)
	if err != nil {
		return err
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	registry, err := NewRegistry()
	if err != nil {
		return err
	}

	return output.Print(cmd.OutOrStdout(), format, listProfiles(registry, *cfg))
}

func listProfiles(registry *server.Registry, cfg config.Config) ProfileList {
	var list ProfileList
	for _, p := range registry.Profiles() {
		list = append(list, ProfileInfo{
			Name:        p.Name,
			Description: p.Description,
			Address:     p.Bind(cfg).Address(),
			Default:     p.Name == cfg.Server.Profile,
		})
	}
	return list
}
