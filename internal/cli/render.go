package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rollout-k8s/rolloutctl/internal/config"
	"github.com/rollout-k8s/rolloutctl/internal/release"
)

// newRenderCommand creates the "render" subcommand that resolves templates
// and prints the concrete documents without planning a release.
func newRenderCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <environment>",
		Short: "Resolve templates and print the concrete resource documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			environment := args[0]

			cfg, err := loadProject(opts)
			if err != nil {
				return err
			}
			envCfg, err := config.ResolveEnvironment(cfg, environment)
			if err != nil {
				return err
			}
			binds, err := collectBindings(cmd, envCfg)
			if err != nil {
				return err
			}

			store, err := newTemplateStore(cfg)
			if err != nil {
				return err
			}
			docs, err := store.Resolve(binds)
			if err != nil {
				return err
			}

			rendered, err := renderDocuments(docs)
			if err != nil {
				return err
			}

			outputDir := cmd.Flag("output").Value.String()
			if outputDir == "" {
				_, writeErr := cmd.OutOrStdout().Write(rendered)
				return writeErr
			}

			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return fmt.Errorf("create output directory %q: %w", outputDir, err)
			}
			outPath := filepath.Join(outputDir, "rendered.yaml")
			if err := os.WriteFile(outPath, rendered, 0o644); err != nil {
				return fmt.Errorf("write rendered documents to %q: %w", outPath, err)
			}
			return nil
		},
	}

	addVarsFlags(cmd)
	cmd.Flags().String("output", "", "Directory to write rendered.yaml into instead of stdout")
	return cmd
}

// renderDocuments converts resolved documents into a multi-document YAML stream.
func renderDocuments(docs []release.ResourceDocument) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	for _, doc := range docs {
		var body map[string]any
		if err := json.Unmarshal(doc.Raw, &body); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", doc.Ref(), err)
		}
		if err := enc.Encode(body); err != nil {
			return nil, fmt.Errorf("encode document %s: %w", doc.Ref(), err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
