package cmds

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-go-golems/servermark/pkg/app"
	"github.com/go-go-golems/servermark/pkg/catalog"
	"github.com/go-go-golems/servermark/pkg/store"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newContainersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "containers",
		Aliases: []string{"c"},
		Short:   "Manage service containers",
	}
	cmd.AddCommand(
		newContainersListCmd(),
		newContainersTemplatesCmd(),
		newContainersCreateCmd(),
		newContainerActionCmd("start", "Start a container", (*store.Containers).StartContainer),
		newContainerActionCmd("stop", "Stop a container", (*store.Containers).StopContainer),
		newContainerActionCmd("restart", "Stop then start a container", (*store.Containers).RestartContainer),
		newContainersRemoveCmd(),
		newContainersLogsCmd(),
	)
	return cmd
}

// loadContainers detects the runtime and lists containers, failing when
// either step recorded an error.
func loadContainers(ctx context.Context, a *app.App) error {
	a.Containers.DetectRuntime(ctx)
	if !a.Containers.IsAvailable() {
		if err := storeErr(a.Containers, "detect container runtime"); err != nil {
			return err
		}
		return errors.New("no container runtime available")
	}
	a.Containers.ListContainers(ctx)
	return storeErr(a.Containers, "list containers")
}

type containerRow struct {
	store.Container
	Service string `json:"service,omitempty"`
}

func printContainers(cmd *cobra.Command, a *app.App) error {
	rows := []containerRow{}
	for _, c := range a.Containers.Containers() {
		svc, _ := c.ServiceID(a.Containers.Prefix())
		rows = append(rows, containerRow{Container: c, Service: svc})
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{
		"runtime":    a.Containers.Runtime(),
		"containers": rows,
	})
}

func newContainersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List containers managed by the runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				if err := loadContainers(ctx, a); err != nil {
					return err
				}
				return printContainers(cmd, a)
			})
		},
	}
}

func newContainersTemplatesCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Show the built-in service templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			if category == "" {
				return printJSON(cmd.OutOrStdout(), catalog.All())
			}
			tpls, ok := catalog.ByCategory()[catalog.Category(category)]
			if !ok {
				return errors.Errorf("unknown category %q", category)
			}
			return printJSON(cmd.OutOrStdout(), tpls)
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Only show templates of this category")
	return cmd
}

// parsePorts reads "host:container" pairs into a container->host map.
func parsePorts(specs []string) (map[int]int, error) {
	ret := map[int]int{}
	for _, s := range specs {
		host, container, ok := strings.Cut(s, ":")
		if !ok {
			return nil, errors.Errorf("invalid port mapping %q (want host:container)", s)
		}
		h, err := strconv.Atoi(host)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid host port in %q", s)
		}
		c, err := strconv.Atoi(container)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid container port in %q", s)
		}
		ret[c] = h
	}
	return ret, nil
}

func newContainersCreateCmd() *cobra.Command {
	var (
		tag   string
		ports []string
	)
	cmd := &cobra.Command{
		Use:   "create <service>",
		Short: "Create a container from a service template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parsePorts(ports)
			if err != nil {
				return err
			}
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				a.Containers.DetectRuntime(ctx)
				if !a.Containers.IsAvailable() {
					return errors.New("no container runtime available")
				}
				if err := a.Containers.CreateContainer(ctx, args[0], tag, overrides); err != nil {
					return err
				}
				return printContainers(cmd, a)
			})
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "Image tag (defaults to the template's default tag)")
	cmd.Flags().StringSliceVarP(&ports, "port", "p", nil, "Host port override as host:container (repeatable)")
	return cmd
}

func newContainerActionCmd(use, short string, action func(*store.Containers, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				a.Containers.DetectRuntime(ctx)
				if err := action(a.Containers, ctx, args[0]); err != nil {
					return err
				}
				return printContainers(cmd, a)
			})
		},
	}
}

func newContainersRemoveCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				a.Containers.DetectRuntime(ctx)
				if err := a.Containers.RemoveContainer(ctx, args[0], force); err != nil {
					return err
				}
				return printContainers(cmd, a)
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Remove even if running")
	return cmd
}

func newContainersLogsCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs <id>",
		Short: "Print the last lines of a container's output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
				out, err := a.Containers.ContainerLogs(ctx, args[0], lines)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 100, "Number of lines")
	return cmd
}
