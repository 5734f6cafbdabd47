package main

import (
	"errors"
	"fmt"
	"strings"

	"devmemory-be/internal/apperr"
	"devmemory-be/internal/dto"
	"devmemory-be/internal/service"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Demote every active session past the inactivity timeout",
	RunE: func(cmd *cobra.Command, args []string) error {
		demoted, err := container.TimeoutMonitor.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		if len(demoted) == 0 {
			color.Green("No stale sessions")
			return nil
		}
		for _, s := range demoted {
			color.Yellow("Ended %s (%s), last activity %s", s.DisplayId, s.Id, s.LastActivityAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var (
	reembedMode      string
	reembedDimension int
)

var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Regenerate context embeddings",
	Long: `Regenerate embeddings for stored context entries.

--mode missing only fills entries without a vector. --mode all drops every
vector first. --dimension must match EMBEDDING_DIMENSION and re-types the
vector column.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := container.ReembedService.Consume(cmd.Context()); err != nil {
			return err
		}
		if reembedMode == service.ReembedModeAll || reembedDimension != 0 {
			color.Yellow("Existing vectors will be dropped before regeneration")
		}
		return dispatch(cmd.Context(), "context.reembed", dto.ReembedRequest{
			Mode:      reembedMode,
			Dimension: reembedDimension,
		})
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <session>",
	Short: "Recompute session counters from artifact rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch(cmd.Context(), "correlation.reconcile", dto.ReconcileRequest{SessionId: args[0]})
	},
}

var projectDescription string

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a project",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch(cmd.Context(), "project.create", dto.CreateProjectRequest{
			Name:        strings.Join(args, " "),
			Description: projectDescription,
		})
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch(cmd.Context(), "project.list", nil)
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and end sessions",
}

var sessionActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "Show the active session, creating one if none is active",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := dispatch(cmd.Context(), "session.getActive", nil)
		if errors.Is(err, apperr.ErrNoDefaultProject) {
			return fmt.Errorf("%w (hint: memoryctl project add <name>)", err)
		}
		return err
	},
}

var sessionEndReason string

var sessionEndCmd = &cobra.Command{
	Use:   "end <session>",
	Short: "End a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch(cmd.Context(), "session.end", dto.EndSessionRequest{SessionId: args[0], Reason: sessionEndReason})
	},
}

var sessionListLimit int

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch(cmd.Context(), "session.list", dto.ListSessionsRequest{Limit: sessionListLimit})
	},
}

var opsCmd = &cobra.Command{
	Use:   "ops [name] [json]",
	Short: "List operations or dispatch one with a raw JSON input",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			for _, d := range container.Registry.Describe() {
				fmt.Printf("  %-32s %s\n", d.Name, d.Description)
			}
			return nil
		}
		raw := ""
		if len(args) == 2 {
			raw = args[1]
		}
		out, err := container.Registry.Dispatch(cmd.Context(), args[0], []byte(raw))
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

func init() {
	reembedCmd.Flags().StringVar(&reembedMode, "mode", service.ReembedModeMissing, "missing or all")
	reembedCmd.Flags().IntVar(&reembedDimension, "dimension", 0, "target dimension for a column migration")

	projectAddCmd.Flags().StringVar(&projectDescription, "description", "", "project description")
	projectCmd.AddCommand(projectAddCmd, projectListCmd)

	sessionEndCmd.Flags().StringVar(&sessionEndReason, "reason", "", "end reason")
	sessionListCmd.Flags().IntVar(&sessionListLimit, "limit", 20, "maximum sessions to list")
	sessionCmd.AddCommand(sessionActiveCmd, sessionEndCmd, sessionListCmd)
}
