package cmds

import (
	"context"

	"github.com/go-go-golems/servermark/pkg/store"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Host services have no backend commands yet, so these subcommands run
// against a local store and show the transitions it goes through.
func newServicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "services",
		Short: "Show and drive host services",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List host services",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := store.NewServices(nil)
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"services": s.Services(),
				"running":  s.RunningCount(),
				"stopped":  s.StoppedCount(),
			})
		},
	})
	cmd.AddCommand(
		newServiceActionCmd("start", "Start a host service", (*store.Services).StartService),
		newServiceActionCmd("stop", "Stop a host service", (*store.Services).StopService),
		newServiceActionCmd("restart", "Stop then start a host service", (*store.Services).RestartService),
	)
	return cmd
}

func newServiceActionCmd(use, short string, action func(*store.Services, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := store.NewServices(nil)
			if use != "start" {
				// A fresh store has everything stopped.
				s.UpdateStatus(args[0], store.ServiceRunning)
			}
			s.Observe(func(id string, from, to store.ServiceStatus) {
				log.Info().Str("service", id).Str("from", string(from)).Str("to", string(to)).Msg("service status")
			})
			if err := action(s, cmd.Context(), args[0]); err != nil {
				return err
			}
			svc, _ := s.Get(args[0])
			return printJSON(cmd.OutOrStdout(), svc)
		},
	}
}
