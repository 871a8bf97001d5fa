package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/corewire/hwire/pkg/brotli"
)

func newCompressCmd(o *rootOptions) *cobra.Command {
	var (
		quality int
		lgwin   int
		stream  bool
	)
	cmd := &cobra.Command{
		Use:   "compress",
		Short: "Brotli-encode stdin to stdout",
		Long: `Compress stdin with the hwire Brotli encoder. Quality and window
default to the brotli section of the configuration.

Without --stream the whole input is read first and the window is sized
to it; with --stream input is compressed block by block.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load(cmd)
			if err != nil {
				return err
			}
			opts := brotli.Options{Quality: cfg.Brotli.Quality, LGWin: cfg.Brotli.LGWin}
			if cmd.Flags().Changed("quality") {
				opts.Quality = quality
			}
			if cmd.Flags().Changed("lgwin") {
				opts.LGWin = lgwin
			}
			in, out := cmd.InOrStdin(), cmd.OutOrStdout()
			if stream {
				w, err := brotli.NewWriter(out, opts)
				if err != nil {
					return err
				}
				if _, err := io.Copy(w, in); err != nil {
					w.Close()
					return err
				}
				return w.Close()
			}
			src, err := io.ReadAll(in)
			if err != nil {
				return err
			}
			b, err := brotli.Encode(src, opts)
			if err != nil {
				return err
			}
			if _, err := out.Write(b); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&quality, "quality", "q", brotli.DefaultQuality, "compression quality, 0 to 11")
	cmd.Flags().IntVar(&lgwin, "lgwin", 0, "window bits, 10 to 24; 0 sizes the window to the input")
	cmd.Flags().BoolVar(&stream, "stream", false, "compress while reading instead of buffering the input")
	return cmd
}
