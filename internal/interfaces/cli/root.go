// Package cli 提供 cinemind 命令行
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"cinemind/internal/application/ingestion"
	"cinemind/internal/application/rag"
	"cinemind/internal/domain/entity"
	"cinemind/internal/domain/repository"
)

// Ingester 同步入库
type Ingester interface {
	Resolve(source string) ([]entity.SourceType, error)
	Run(ctx context.Context, req ingestion.Request) ([]*entity.IngestionRun, error)
}

// Asker 问答
type Asker interface {
	Ask(ctx context.Context, q rag.Query) (*entity.Answer, *entity.RetrievalResult, error)
}

// MovieFinder 影片详情
type MovieFinder interface {
	Get(ctx context.Context, movieID string) (*entity.MovieDetail, error)
}

// Deps 命令依赖；Runs 为 nil 表示未启用运行记录账本
type Deps struct {
	Ingester Ingester
	Asker    Asker
	Movies   MovieFinder
	Runs     repository.IngestionRunRepository
}

// Loader 按需初始化依赖，返回的 cleanup 在命令结束后调用
type Loader func(ctx context.Context) (*Deps, func(), error)

// NewRootCmd 创建根命令
func NewRootCmd(load Loader) *cobra.Command {
	root := &cobra.Command{
		Use:           "cinemind",
		Short:         "Film knowledge assistant over screenplays, reviews and catalog data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newIngestCmd(load),
		newQueryCmd(load),
		newRunsCmd(load),
		newMovieCmd(load),
	)
	return root
}

// withDeps 加载依赖并在命令结束后释放
func withDeps(cmd *cobra.Command, load Loader, fn func(deps *Deps) error) error {
	deps, cleanup, err := load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer cleanup()
	return fn(deps)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
