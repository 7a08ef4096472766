package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"cinemind/internal/application/ingestion"
	"cinemind/internal/domain/entity"
	"cinemind/internal/interfaces/http/dto"
)

// ErrRunFailed 入库完成但存在可重试的失败
var ErrRunFailed = errors.New("ingestion finished with retryable failures")

func newIngestCmd(load Loader) *cobra.Command {
	var (
		source string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest configured sources into the vector index",
		Long: `Normalizes, chunks and embeds the configured sources.
Unchanged chunks are skipped, so re-running is cheap.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, load, func(deps *Deps) error {
				sources, err := deps.Ingester.Resolve(source)
				if err != nil {
					return err
				}
				runs, runErr := deps.Ingester.Run(cmd.Context(), ingestion.Request{Sources: sources, Limit: limit})
				if asJSON {
					if err := printJSON(cmd, dto.ToIngestionRunList(runs)); err != nil {
						return err
					}
				} else {
					printRuns(cmd, runs)
				}
				if runErr != nil {
					return runErr
				}
				for _, run := range runs {
					if run.ShouldRetry() {
						return ErrRunFailed
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "all", "source to ingest: screenplay, review, catalog or all")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "maximum items per source (0 = no limit)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output runs as JSON")
	return cmd
}

func printRuns(cmd *cobra.Command, runs []*entity.IngestionRun) {
	if len(runs) == 0 {
		cmd.Println("No runs.")
		return
	}
	for _, run := range runs {
		if run == nil {
			continue
		}
		status := "ok"
		switch {
		case run.Cancelled:
			status = "cancelled"
		case run.Failed():
			status = fmt.Sprintf("%d failures", len(run.Failures))
		}
		cmd.Printf("%-10s %s  seen=%d written=%d unchanged=%d deleted=%d  %s\n",
			run.SourceType, run.ID,
			run.DocumentsSeen, run.DocumentsWritten, run.DocumentsSkippedUnchanged, run.DocumentsDeleted,
			status,
		)
		for _, f := range run.Failures {
			cmd.Printf("    %s [%s] %s\n", f.SourceKey, f.Kind, f.Message)
		}
	}
}
