package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"cinemind/internal/domain/entity"
	"cinemind/internal/interfaces/http/dto"
)

func newMovieCmd(load Loader) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "movie <movie_id>",
		Short: "Show movie metadata and indexed source counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, load, func(deps *Deps) error {
				m, err := deps.Movies.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd, dto.ToMovieResponse(m))
				}
				printMovie(cmd, m)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output movie as JSON")
	return cmd
}

func printMovie(cmd *cobra.Command, m *entity.MovieDetail) {
	cmd.Printf("%s  %s", m.MovieID, m.Title)
	if m.ReleaseYear > 0 {
		cmd.Printf(" (%d)", m.ReleaseYear)
	}
	cmd.Println()
	if m.Director != "" {
		cmd.Printf("  director: %s\n", m.Director)
	}
	if len(m.Genres) > 0 {
		cmd.Printf("  genres:   %s\n", strings.Join(m.Genres, ", "))
	}
	cmd.Printf("  sources:  %d", m.SourceCount)
	for _, st := range entity.SourceTypes {
		if n := m.SourceCounts[st]; n > 0 {
			cmd.Printf("  %s=%d", st, n)
		}
	}
	cmd.Println()
}
