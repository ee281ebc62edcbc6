package cmds

import (
	"context"

	"github.com/go-go-golems/servermark/pkg/app"
	"github.com/go-go-golems/servermark/pkg/events"
	"github.com/go-go-golems/servermark/pkg/tray"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type trayResult struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Error string `json:"error,omitempty"`
}

func newTrayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tray",
		Short: "Run the tray menu actions",
	}
	cmd.AddCommand(
		newTrayActionCmd("start-all", "Start every stopped container", tray.ActionStartAll, events.TrayStartAll),
		newTrayActionCmd("stop-all", "Stop every running container", tray.ActionStopAll, events.TrayStopAll),
	)
	return cmd
}

func newTrayActionCmd(use, short string, action tray.Action, intent string) *cobra.Command {
	var viaEvent bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			done := make(chan []tray.Result, 1)
			opts := app.Options{}
			if viaEvent {
				opts.OnTrayDone = func(_ tray.Action, results []tray.Result) {
					select {
					case done <- results:
					default:
					}
				}
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if err := loadContainers(ctx, a); err != nil {
					return err
				}

				var results []tray.Result
				if viaEvent {
					if err := a.Bus.Emit(intent, nil); err != nil {
						return err
					}
					select {
					case results = <-done:
					case <-ctx.Done():
						return errors.Wrap(ctx.Err(), "wait for tray run")
					}
				} else {
					results = a.Tray.Run(ctx, action)
				}

				rows := make([]trayResult, 0, len(results))
				for _, r := range results {
					row := trayResult{ID: r.ID, Name: r.Name}
					if r.Err != nil {
						row.Error = r.Err.Error()
					}
					rows = append(rows, row)
				}
				if err := printJSON(cmd.OutOrStdout(), map[string]any{"action": action, "results": rows}); err != nil {
					return err
				}
				if failed := tray.Failed(results); len(failed) > 0 {
					return errors.Errorf("%d of %d containers failed", len(failed), len(results))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&viaEvent, "via-event", false, "Publish the tray intent on the event channel instead of calling the bridge directly")
	return cmd
}
