package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/embedapi/internal/batch"
	"github.com/hyperjump/embedapi/internal/cli"
	"github.com/hyperjump/embedapi/internal/client"
	"github.com/hyperjump/embedapi/internal/config"
	"github.com/hyperjump/embedapi/internal/extract"
	"github.com/hyperjump/embedapi/internal/models"
)

const defaultOutput = "embeddings.json"

// embedFlags are the batching client's flags, shared by embed and watch.
type embedFlags struct {
	model     string
	chunkSize int
	parallel  int
	serverURL string
}

func (f *embedFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.model, "model", "m", string(models.BackendLocal), "backend: local or openai")
	cmd.Flags().IntVar(&f.chunkSize, "chunk-size", 0, "texts per request (default from client.chunk_size)")
	cmd.Flags().IntVar(&f.parallel, "parallel", 1, "chunk requests in flight")
	cmd.Flags().StringVar(&f.serverURL, "server", "", "server URL (default from client.server_url)")
}

// coordinator builds the batch coordinator for cfg, with flags taking
// precedence over config values.
func (f *embedFlags) coordinator(cfg *config.Config, logger *zap.Logger, progress io.Writer) *batch.Coordinator {
	serverURL := cfg.Client.ServerURL
	if f.serverURL != "" {
		serverURL = f.serverURL
	}
	chunkSize := cfg.Client.ChunkSize
	if f.chunkSize > 0 {
		chunkSize = f.chunkSize
	}
	opts := []batch.Option{
		batch.WithChunkSize(chunkSize),
		batch.WithParallel(f.parallel),
		batch.WithLogger(logger),
	}
	if progress != nil {
		opts = append(opts, batch.WithProgress(func(p batch.Progress) {
			if p.Err != nil {
				fmt.Fprintf(progress, "chunk %d/%d (%d texts) failed: %v\n", p.Chunk, p.Total, p.Size, p.Err)
				return
			}
			fmt.Fprintf(progress, "chunk %d/%d (%d texts) done\n", p.Chunk, p.Total, p.Size)
		}))
	}
	return batch.New(client.New(serverURL, cfg.Client.Timeout), opts...)
}

func newEmbedCmd(opts *rootOptions) *cobra.Command {
	var (
		flags  embedFlags
		text   string
		file   string
		output string
	)
	cmd := &cobra.Command{
		Use:   "embed (--text TEXT | --file FILE)",
		Short: "Embed a text or every line of a file through a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := models.ParseBackend(flags.model)
			if err != nil {
				return err
			}
			lines, err := inputLines(cmd, text, file)
			if err != nil {
				return err
			}
			if _, err := os.Stat(output); err == nil {
				return fmt.Errorf("%s: %w", output, cli.ErrOutputExists)
			}

			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			coord := flags.coordinator(cfg, logger, cmd.ErrOrStderr())
			return embedToFile(cmd.Context(), coord, lines, backend, output, cmd.OutOrStdout())
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&text, "text", "t", "", "single text to embed")
	cmd.Flags().StringVarP(&file, "file", "f", "", "file to embed, one text per line (.txt, .md, .pdf, .docx, .xlsx)")
	cmd.Flags().StringVarP(&output, "output", "o", defaultOutput, "output JSON file (must not exist)")
	cmd.MarkFlagsMutuallyExclusive("text", "file")
	cmd.MarkFlagsOneRequired("text", "file")
	return cmd
}

func inputLines(cmd *cobra.Command, text, file string) ([]string, error) {
	if cmd.Flags().Changed("text") {
		return []string{text}, nil
	}
	lines, err := extract.Lines(file)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%s: no text to embed", file)
	}
	return lines, nil
}

// embedToFile runs the coordinator over lines and writes the records to
// output. Nothing is written when the run is interrupted.
func embedToFile(ctx context.Context, coord *batch.Coordinator, lines []string, backend models.Backend, output string, summary io.Writer) error {
	report, err := coord.Run(ctx, lines, backend)
	if err != nil {
		return err
	}
	if report.FailedChunks == report.Chunks && report.Chunks > 0 {
		return errors.New("every chunk failed; is the server running?")
	}
	if err := cli.WriteRecordsFile(output, report.Records); err != nil {
		return err
	}
	cli.WriteReport(summary, report, output)
	return nil
}
