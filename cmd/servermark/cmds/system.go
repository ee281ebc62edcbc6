package cmds

import (
	"context"

	"github.com/go-go-golems/servermark/pkg/app"
	"github.com/spf13/cobra"
)

func newSystemCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "system",
		Short: "Inspect the host and the backend",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Show distro and package manager as detected by the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				a.System.DetectSystem(ctx)
				if err := storeErr(a.System, "detect system"); err != nil {
					return err
				}
				info, _ := a.System.Info()
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"system":          info,
					"package_manager": a.System.PackageManager(),
				})
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "backend",
		Short: "Show the backend handshake",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				spec := a.Client.Spec()
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"path":      spec.Path,
					"workdir":   spec.WorkDir,
					"handshake": a.Client.Handshake(),
				})
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Load every store once and report what failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				a.Refresh(ctx)
				active, _ := a.PHP.ActiveVersion()
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"containers":    len(a.Containers.Containers()),
					"runtime":       a.Containers.Runtime(),
					"php_active":    active.Version,
					"php_installed": len(a.PHP.InstalledVersions()),
					"sites":         a.Sites.SiteCount(),
					"errors":        a.Errors(),
				})
			})
		},
	})
	return cmd
}
