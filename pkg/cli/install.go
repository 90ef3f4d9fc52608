package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/go-modpackinstaller/pkg/config"
	"github.com/go-modpackinstaller/pkg/model"
	"github.com/go-modpackinstaller/pkg/provider"
)

func newInstallCommand(e *env) *cobra.Command {
	var (
		providerName string
		contentType  string
		versionIndex int
		profileDir   string
	)
	cmd := &cobra.Command{
		Use:   "install <id>",
		Short: "Install a modpack (or a single mod) into a profile directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := provider.New(providerName, e.cfg, e.logger)
			if err != nil {
				return err
			}
			dir := profileDir
			if dir == "" {
				dir = filepath.Join(e.cfg.ProfilesDirectory, args[0])
			}
			detail := &model.ModDetail{ID: args[0], Type: model.ContentType(normalizeType(contentType))}

			plan, err := e.manager(cmd).InstallModpack(cmd.Context(), p, detail, versionIndex, dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Installed %d files into %s\n", len(plan.Files), dir)
			if plan.Loader != nil {
				rec, err := e.manager(cmd).LoaderStatus(dir)
				if err != nil {
					return err
				}
				if rec != nil {
					fmt.Fprintf(e.out, "Loader %s is required: run `loader install %s`\n", rec.VersionString, dir)
				}
			}
			return nil
		},
	}
	providerFlag(cmd, &providerName)
	contentTypeFlag(cmd, &contentType)
	cmd.Flags().IntVar(&versionIndex, "version-index", 0, "Index of the version to install, as listed by details")
	cmd.Flags().StringVar(&profileDir, "profile-dir", "", "Target directory (default <profiles-dir>/<id>)")
	return cmd
}

func newDownloadVersionCommand(e *env) *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "download-version <manifest.json>",
		Short: "Download every file of a version manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := config.LoadManifest(args[0])
			if err != nil {
				return err
			}
			dir := root
			if dir == "" {
				dir = e.cfg.GameDirectory
			}
			n, err := e.manager(cmd).InstallVersion(cmd.Context(), manifest, dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%d of %d files downloaded into %s\n", n, len(manifest.Files), dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "Install root (default the game directory)")
	return cmd
}
