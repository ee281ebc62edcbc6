package cmds

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-go-golems/servermark/pkg/app"
	"github.com/go-go-golems/servermark/pkg/progress"
	"github.com/go-go-golems/servermark/pkg/store"
	"github.com/spf13/cobra"
)

func newPHPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "php",
		Short: "Manage PHP versions, extensions and the PPA",
	}
	cmd.AddCommand(
		newPHPListCmd(),
		newPHPExtensionsCmd(),
		newPHPSwitchCmd(),
		newPHPInstallCmd(),
		newPHPUninstallCmd(),
		newPHPPPACmd(),
	)
	return cmd
}

func printVersions(cmd *cobra.Command, php *store.PHP) error {
	out := map[string]any{"versions": php.Versions()}
	if active, ok := php.ActiveVersion(); ok {
		out["active"] = active.Version
	}
	return printJSON(cmd.OutOrStdout(), out)
}

// watchProgress prints every new progress record of kind to w until the
// returned func is called.
func watchProgress(w io.Writer, php *store.PHP, kind progress.Kind) func() {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		var last progress.Record
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			rec, ok := php.Progress(kind)
			if !ok || rec == last {
				continue
			}
			last = rec
			_, _ = fmt.Fprintf(w, "[%3d%%] %d/%d %s (%s)\n", rec.Percent(), rec.CurrentStep, rec.TotalSteps, rec.Step, rec.Status)
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func newPHPListCmd() *cobra.Command {
	var installed bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available and installed PHP versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				a.PHP.FetchVersions(ctx)
				if err := storeErr(a.PHP, "fetch php versions"); err != nil {
					return err
				}
				if installed {
					return printJSON(cmd.OutOrStdout(), a.PHP.InstalledVersions())
				}
				return printVersions(cmd, a.PHP)
			})
		},
	}
	cmd.Flags().BoolVar(&installed, "installed", false, "Only show installed versions")
	return cmd
}

func newPHPExtensionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extensions",
		Short: "List installable PHP extensions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				a.PHP.FetchExtensions(ctx)
				if err := storeErr(a.PHP, "fetch php extensions"); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"extensions": a.PHP.Extensions(),
					"defaults":   a.PHP.DefaultExtensions(),
				})
			})
		},
	}
}

func newPHPSwitchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <version>",
		Short: "Make a PHP version the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				if err := a.PHP.SwitchVersion(ctx, args[0]); err != nil {
					return err
				}
				return printVersions(cmd, a.PHP)
			})
		},
	}
}

func newPHPInstallCmd() *cobra.Command {
	var (
		extensions        []string
		defaultExtensions bool
	)
	cmd := &cobra.Command{
		Use:   "install <version>",
		Short: "Install a PHP version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				a.System.DetectSystem(ctx)

				exts := extensions
				if defaultExtensions {
					a.PHP.FetchExtensions(ctx)
					if err := storeErr(a.PHP, "fetch php extensions"); err != nil {
						return err
					}
					exts = append(exts, a.PHP.DefaultExtensions()...)
				}

				if len(exts) == 0 {
					if err := a.PHP.InstallVersion(ctx, args[0]); err != nil {
						return err
					}
					return printVersions(cmd, a.PHP)
				}

				stop := watchProgress(cmd.ErrOrStderr(), a.PHP, progress.KindInstall)
				err := a.PHP.InstallWithExtensions(ctx, args[0], exts)
				stop()
				if err != nil {
					return err
				}
				return printVersions(cmd, a.PHP)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&extensions, "extensions", "e", nil, "Extensions to install with the version")
	cmd.Flags().BoolVar(&defaultExtensions, "default-extensions", false, "Also install the backend's default extension set")
	return cmd
}

func newPHPUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <version>",
		Short: "Remove a PHP version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				a.System.DetectSystem(ctx)
				stop := watchProgress(cmd.ErrOrStderr(), a.PHP, progress.KindUninstall)
				err := a.PHP.UninstallVersion(ctx, args[0])
				stop()
				if err != nil {
					return err
				}
				return printVersions(cmd, a.PHP)
			})
		},
	}
}

func newPHPPPACmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ppa",
		Short: "Inspect or add the PHP package archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				a.PHP.CheckPPA(ctx)
				if err := storeErr(a.PHP, "check ppa"); err != nil {
					return err
				}
				st, _ := a.PHP.PPA()
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add",
		Short: "Add the PHP package archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				stop := watchProgress(cmd.ErrOrStderr(), a.PHP, progress.KindPPA)
				err := a.PHP.AddPPA(ctx)
				stop()
				if err != nil {
					return err
				}
				st, _ := a.PHP.PPA()
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	})
	return cmd
}
