package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"cinemind/internal/domain/entity"
	"cinemind/internal/domain/repository"
	"cinemind/internal/interfaces/http/dto"
)

// ErrLedgerDisabled 未启用 PostgreSQL 运行记录账本
var ErrLedgerDisabled = errors.New("ingestion run ledger is not configured (database.postgres.enabled)")

func newRunsCmd(load Loader) *cobra.Command {
	var (
		sourceType string
		limit      int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent ingestion runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := repository.IngestionRunFilter{Limit: limit}
			if sourceType != "" {
				st, err := entity.ParseSourceType(sourceType)
				if err != nil {
					return err
				}
				filter.SourceType = st
			}
			return withDeps(cmd, load, func(deps *Deps) error {
				if deps.Runs == nil {
					return ErrLedgerDisabled
				}
				runs, err := deps.Runs.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd, dto.ToIngestionRunList(runs))
				}
				printRuns(cmd, runs)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sourceType, "source-type", "", "only runs of this source type")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output runs as JSON")
	return cmd
}
