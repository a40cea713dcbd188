package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ehr/visitrecon/internal/config"
	"github.com/ehr/visitrecon/internal/domain/reconcile"
	"github.com/ehr/visitrecon/internal/domain/segment"
	"github.com/ehr/visitrecon/internal/platform/extractor"
)

func segmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "segment <pages-file>",
		Short: "Split a page stream into visit chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			pages, err := extractor.LoadPages(args[0])
			if err != nil {
				return err
			}
			if err := segment.Validate(pages, cfg.MaxPageCount); err != nil {
				return err
			}
			seg, err := segment.NewSegmenter(logger, cfg.BoundaryPatterns...)
			if err != nil {
				return err
			}
			chunks := seg.Segment(pages)
			return writeOutput(cmd, segment.SegmentResponse{Chunks: chunks})
		},
	}
	addFormatFlag(cmd)
	return cmd
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile <visits-file>",
		Short: "Reconcile the entries of already extracted visits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			visits, err := extractor.LoadVisits(args[0])
			if err != nil {
				return err
			}
			if len(visits) == 0 {
				return fmt.Errorf("%s contains no visits", filepath.Base(args[0]))
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r, err := reconcile.New(cfg.FuzzyThreshold,
				reconcile.WithLogger(logger),
				reconcile.WithWorkers(cfg.Workers),
			)
			if err != nil {
				return err
			}

			reconciled, err := r.Visits(ctx, visits)
			if err != nil {
				return err
			}
			docPass, _ := cmd.Flags().GetBool("document-pass")
			if docPass {
				if reconciled, err = r.Document(ctx, reconciled); err != nil {
					return err
				}
			}
			return writeOutput(cmd, reconcile.ReconcileResponse{Threshold: r.Threshold(), Visits: reconciled})
		},
	}
	cmd.Flags().Bool("document-pass", false, "Run the document-level merge over each reconciled visit")
	addFormatFlag(cmd)
	return cmd
}

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <pages-file>",
		Short: "Run the full pipeline over a page stream and store the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			pages, err := extractor.LoadPages(args[0])
			if err != nil {
				return err
			}

			var ext extractor.FieldExtractor
			if path, _ := cmd.Flags().GetString("extractions"); path != "" {
				static, err := extractor.LoadStatic(path)
				if err != nil {
					return err
				}
				ext = static
			}
			if noStore, _ := cmd.Flags().GetBool("no-store"); noStore {
				cfg.StoreDriver = config.StoreMemory
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger, ext)
			if err != nil {
				return err
			}
			defer a.close()

			source, _ := cmd.Flags().GetString("source")
			if source == "" {
				source = filepath.Base(args[0])
			}
			doc, err := a.service.Process(ctx, source, pages)
			if err != nil {
				return err
			}
			return writeOutput(cmd, doc)
		},
	}
	cmd.Flags().String("extractions", "", "YAML or JSON file of pre-extracted visits keyed by visit_id")
	cmd.Flags().String("source", "", "Source name recorded on the document (defaults to the file name)")
	cmd.Flags().Bool("no-store", false, "Keep the result in memory only")
	addFormatFlag(cmd)
	return cmd
}

func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "json", "Output format: json or yaml")
}

// writeOutput prints v in the requested format. YAML output is derived from
// the JSON encoding so both formats share field names and key order.
func writeOutput(cmd *cobra.Command, v interface{}) error {
	format, _ := cmd.Flags().GetString("output")
	return encodeOutput(cmd.OutOrStdout(), format, v)
}

func encodeOutput(w io.Writer, format string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	switch format {
	case "", "json":
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml", "yml":
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return fmt.Errorf("convert output: %w", err)
		}
		blockStyle(&node)
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(&node); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// blockStyle clears the flow and quoting styles the JSON source implies.
func blockStyle(n *yaml.Node) {
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		n.Style = 0
	}
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" {
		n.Style = 0
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}
