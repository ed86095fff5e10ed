package main

import (
	"fmt"

	"github.com/charmbracelet/huh/spinner"
	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"

	"whisperpad/config"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update whisperpad to the latest release",
	RunE:  runUpdate,
}

func runUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if version == "dev" {
		return fmt.Errorf("development builds can't be updated, install a release instead")
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var latest *selfupdate.Release
	var found bool
	var detectErr error
	err = spinner.New().
		Title("Checking for updates...").
		Action(func() {
			latest, found, detectErr = selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(cfg.Update.Repository))
		}).
		Run()
	if err != nil {
		return err
	}
	if detectErr != nil {
		return fmt.Errorf("failed to check for updates: %w", detectErr)
	}
	if !found {
		return fmt.Errorf("no release found for %s", cfg.Update.Repository)
	}
	if latest.LessOrEqual(version) {
		fmt.Fprintln(out, infoStyle.Render(fmt.Sprintf("whisperpad %s is the latest version", version)))
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}

	var updateErr error
	err = spinner.New().
		Title(fmt.Sprintf("Downloading whisperpad %s...", latest.Version())).
		Action(func() {
			updateErr = selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe)
		}).
		Run()
	if err != nil {
		return err
	}
	if updateErr != nil {
		return fmt.Errorf("failed to update: %w", updateErr)
	}

	fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("Updated whisperpad %s -> %s", version, latest.Version())))
	return nil
}
