package cmds

import (
	"context"
	"fmt"

	"github.com/go-go-golems/servermark/pkg/app"
	"github.com/go-go-golems/servermark/pkg/store"
	"github.com/spf13/cobra"
)

func newSitesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sites",
		Short: "Manage local sites",
	}
	cmd.AddCommand(
		newSitesListCmd(),
		newSitesConfigCmd(),
		newSitesFrameworksCmd(),
		newSitesAddCmd(),
		newSitesCreateCmd(),
		newSitesCloneCmd(),
		newSitesRemoveCmd(),
		newSitesPHPCmd(),
		newSiteActionCmd("secure", "Serve a site over HTTPS", (*store.Sites).SecureSite),
		newSiteActionCmd("unsecure", "Serve a site over plain HTTP", (*store.Sites).UnsecureSite),
		newSitesSchedulerCmd(),
		newSitesQueueCmd(),
		newSitesLogsCmd(),
	)
	return cmd
}

func loadSites(ctx context.Context, a *app.App) error {
	a.Sites.FetchSites(ctx)
	return storeErr(a.Sites, "fetch sites")
}

func newSitesListCmd() *cobra.Command {
	var (
		laravel bool
		status  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sites",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				if err := loadSites(ctx, a); err != nil {
					return err
				}
				if status {
					a.Sites.RefreshLaravelStatus(ctx)
					if err := storeErr(a.Sites, "refresh laravel status"); err != nil {
						return err
					}
				}
				sites := a.Sites.Sites()
				if laravel {
					sites = a.Sites.LaravelSites()
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"sites":   sites,
					"count":   a.Sites.SiteCount(),
					"secured": len(a.Sites.ActiveSites()),
				})
			})
		},
	}
	cmd.Flags().BoolVar(&laravel, "laravel", false, "Only list Laravel sites")
	cmd.Flags().BoolVar(&status, "status", false, "Read scheduler and queue status of Laravel sites")
	return cmd
}

func newSitesConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the sites configuration (TLD, sites path)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				a.Sites.FetchConfig(ctx)
				if err := storeErr(a.Sites, "fetch sites config"); err != nil {
					return err
				}
				cfg, _ := a.Sites.Config()
				return printJSON(cmd.OutOrStdout(), cfg)
			})
		},
	}
}

func newSitesFrameworksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "frameworks",
		Short: "List project templates for sites create",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				a.Sites.FetchFrameworks(ctx)
				if err := storeErr(a.Sites, "fetch frameworks"); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), a.Sites.Frameworks())
			})
		},
	}
}

func newSitesAddCmd() *cobra.Command {
	var req store.AddSiteRequest
	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Serve an existing directory as a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Path = args[0]
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				site, err := a.Sites.AddSite(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), site)
			})
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "Site name (defaults to the directory name)")
	cmd.Flags().StringVar(&req.PHPVersion, "php", "", "PHP version for the site")
	return cmd
}

func newSitesCreateCmd() *cobra.Command {
	var req store.CreateProjectRequest
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Scaffold a new project from a framework template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				site, err := a.Sites.CreateProject(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), site)
			})
		},
	}
	cmd.Flags().StringVar(&req.Framework, "framework", "laravel", "Framework template id")
	cmd.Flags().StringVar(&req.Version, "version", "", "Framework version (defaults to the template's default)")
	cmd.Flags().StringVar(&req.PHPVersion, "php", "", "PHP version for the site")
	cmd.Flags().StringVar(&req.Path, "path", "", "Parent directory (defaults to the configured sites path)")
	return cmd
}

func newSitesCloneCmd() *cobra.Command {
	var req store.CloneRepositoryRequest
	cmd := &cobra.Command{
		Use:   "clone <repo-url>",
		Short: "Clone a repository and serve it as a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.RepoURL = args[0]
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				site, err := a.Sites.CloneRepository(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), site)
			})
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "Site name (defaults to the repository name)")
	cmd.Flags().StringVar(&req.PHPVersion, "php", "", "PHP version for the site")
	return cmd
}

func newSitesRemoveCmd() *cobra.Command {
	return newSiteActionCmd("remove", "Stop serving a site", (*store.Sites).RemoveSite)
}

func newSiteActionCmd(use, short string, action func(*store.Sites, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				if err := action(a.Sites, ctx, args[0]); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), a.Sites.Sites())
			})
		},
	}
}

func newSitesPHPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "php <id> <version>",
		Short: "Change the PHP version a site runs on",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				if err := a.Sites.UpdateSitePHP(ctx, args[0], args[1]); err != nil {
					return err
				}
				site, _ := a.Sites.Site(args[0])
				return printJSON(cmd.OutOrStdout(), site)
			})
		},
	}
}

type laravelActions struct {
	enable, disable, toggle func(*store.Sites, context.Context, string) error
}

// newLaravelCmd builds on/off/toggle subcommands. The site list is fetched
// first because the commands address sites by their cached path.
func newLaravelCmd(use, short string, on, off string, actions laravelActions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
	}
	for _, sub := range []struct {
		use    string
		short  string
		action func(*store.Sites, context.Context, string) error
	}{
		{on, "Turn on for a site", actions.enable},
		{off, "Turn off for a site", actions.disable},
		{"toggle", "Flip the cached state for a site", actions.toggle},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   sub.use + " <id>",
			Short: sub.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
					if err := loadSites(ctx, a); err != nil {
						return err
					}
					if err := sub.action(a.Sites, ctx, args[0]); err != nil {
						return err
					}
					site, _ := a.Sites.Site(args[0])
					return printJSON(cmd.OutOrStdout(), site)
				})
			},
		})
	}
	return cmd
}

func newSitesSchedulerCmd() *cobra.Command {
	return newLaravelCmd("scheduler", "Control the Laravel scheduler of a site", "enable", "disable", laravelActions{
		enable:  (*store.Sites).EnableScheduler,
		disable: (*store.Sites).DisableScheduler,
		toggle:  (*store.Sites).ToggleScheduler,
	})
}

func newSitesQueueCmd() *cobra.Command {
	return newLaravelCmd("queue", "Control the Laravel queue worker of a site", "start", "stop", laravelActions{
		enable:  (*store.Sites).StartQueueWorker,
		disable: (*store.Sites).StopQueueWorker,
		toggle:  (*store.Sites).ToggleQueueWorker,
	})
}

func newSitesLogsCmd() *cobra.Command {
	var (
		queue bool
		clearLogs bool
		lines int
	)
	cmd := &cobra.Command{
		Use:   "logs <id>",
		Short: "Print scheduler (default) or queue worker logs of a Laravel site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				if err := loadSites(ctx, a); err != nil {
					return err
				}
				if clearLogs {
					return a.Sites.ClearSchedulerLogs(ctx, args[0])
				}
				read := a.Sites.SchedulerLogs
				if queue {
					read = a.Sites.QueueLogs
				}
				out, err := read(ctx, args[0], lines)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&queue, "queue", false, "Show queue worker logs")
	cmd.Flags().BoolVar(&clearLogs, "clear", false, "Truncate the scheduler log instead of printing it")
	cmd.Flags().IntVarP(&lines, "lines", "n", 100, "Number of lines")
	return cmd
}
