package cli

import (
	"github.com/spf13/cobra"

	"cinemind/internal/application/rag"
	"cinemind/internal/interfaces/http/dto"
)

func newQueryCmd(load Loader) *cobra.Command {
	var (
		topK   int
		title  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Ask a question about the ingested films",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, load, func(deps *Deps) error {
				answer, result, err := deps.Asker.Ask(cmd.Context(), rag.Query{
					Text:  args[0],
					TopK:  topK,
					Title: title,
				})
				if err != nil {
					return err
				}
				resp := dto.ToQueryResponse(answer, result)
				if asJSON {
					return printJSON(cmd, resp)
				}

				cmd.Println(resp.Answer)
				if len(resp.Sources) == 0 {
					return nil
				}
				cmd.Println()
				cmd.Println("Sources:")
				for i, s := range resp.Sources {
					cmd.Printf("  [%d] %s (%s, %.2f)", i+1, s.Title, s.SourceType, s.Score)
					if s.Sentiment != nil {
						cmd.Printf(" sentiment=%s", s.Sentiment.Label)
					}
					cmd.Printf("\n      id=%s\n", s.ID)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of documents to retrieve (default from config)")
	cmd.Flags().StringVarP(&title, "title", "t", "", "restrict retrieval to one film title")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the answer as JSON")
	return cmd
}
