package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/marketlens/internal/api"
	"github.com/kalambet/marketlens/internal/config"
	"github.com/kalambet/marketlens/internal/pipeline"
	"github.com/kalambet/marketlens/internal/storage"
)

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a product on the running server",
	Long: `Analyze a product on the running server. The result replaces the
cached personas.

Examples:
  marketlens analyze --image ./bottle.jpg
  marketlens analyze --image-url https://example.com/bottle.png --text "insulated steel bottle"
  marketlens analyze --url https://example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		imagePath, _ := cmd.Flags().GetString("image")
		imageURL, _ := cmd.Flags().GetString("image-url")
		text, _ := cmd.Flags().GetString("text")
		website, _ := cmd.Flags().GetString("url")
		asJSON, _ := cmd.Flags().GetBool("json")

		if imagePath == "" && imageURL == "" && text == "" && website == "" {
			return fmt.Errorf("one of --image, --image-url, --text, or --url is required")
		}
		if text != "" && website != "" {
			return fmt.Errorf("--text and --url cannot be combined")
		}

		fields := map[string]string{
			"image_url":       imageURL,
			"text_input":      text,
			"text_input_type": api.TextTypeText,
		}
		if website != "" {
			fields["text_input"] = website
			fields["text_input_type"] = api.TextTypeURL
		}

		var file *upload
		if imagePath != "" {
			data, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("reading image: %w", err)
			}
			file = &upload{field: "file", name: imagePath, data: data}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Analyzing (this takes a few model calls)...")
		resp, err := client.postForm(cmd.Context(), "/analyze", fields, file)
		if err != nil {
			return err
		}
		var result pipeline.Result
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if asJSON {
			return printJSON(cmd.OutOrStdout(), result)
		}
		printResult(cmd, &result)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().String("image", "", "path to a product image or PDF")
	analyzeCmd.Flags().String("image-url", "", "URL of a product image")
	analyzeCmd.Flags().String("text", "", "product description")
	analyzeCmd.Flags().String("url", "", "company website to analyze")
	analyzeCmd.Flags().Bool("json", false, "print the raw JSON response")
}

func printResult(cmd *cobra.Command, result *pipeline.Result) {
	out := cmd.OutOrStdout()
	if len(result.SegmentKeys) == 0 {
		printWarning("No segments found in the model output")
		fmt.Fprintln(out, result.Segments)
		return
	}
	names := make([]string, 0, len(result.SegmentKeys))
	for name := range result.SegmentKeys {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		key := result.SegmentKeys[name]
		fmt.Fprintf(out, "%s  %s\n", colorize(colorBold, name), colorize(colorCyan, key))
		fmt.Fprintf(out, "%s\n\n", result.Personas[name])
	}
	printSuccess("%d segments cached", len(result.SegmentKeys))
}

// --- personas ---

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "Browse the cached personas",
}

var personasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached segments",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/personas")
		if err != nil {
			return err
		}
		var records []storage.Record
		if err := decodeJSON(resp, &records); err != nil {
			return err
		}

		if asJSON {
			return printJSON(cmd.OutOrStdout(), records)
		}
		if len(records) == 0 {
			printWarning("No cached personas")
			return nil
		}
		out := cmd.OutOrStdout()
		for _, rec := range records {
			fmt.Fprintf(out, "%s  %s  %s\n",
				colorize(colorCyan, rec.SegmentKey),
				colorize(colorBold, rec.SegmentName),
				truncate(rec.ValueProposition, 60),
			)
		}
		return nil
	},
}

var personasShowCmd = &cobra.Command{
	Use:   "show <segment-key>",
	Short: "Show one cached segment and its persona",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/persona/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var rec storage.Record
		if err := decodeJSON(resp, &rec); err != nil {
			return err
		}

		if asJSON {
			return printJSON(cmd.OutOrStdout(), rec)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s  %s\n", colorize(colorBold, rec.SegmentName), colorize(colorCyan, rec.SegmentKey))
		fmt.Fprintf(out, "Analyzed at: %s\n", rec.Timestamp)
		if rec.ValueProposition != "" {
			fmt.Fprintf(out, "\n%s\n%s\n", colorize(colorBold, "Value proposition"), rec.ValueProposition)
		}
		fmt.Fprintf(out, "\n%s\n%s\n", colorize(colorBold, "Segment"), rec.DetailedAnalysis)
		fmt.Fprintf(out, "\n%s\n%s\n", colorize(colorBold, "Persona"), rec.Persona)
		return nil
	},
}

func init() {
	personasListCmd.Flags().Bool("json", false, "print JSON")
	personasShowCmd.Flags().Bool("json", false, "print JSON")
	personasCmd.AddCommand(personasListCmd)
	personasCmd.AddCommand(personasShowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		fmt.Fprintf(out, "\nConfig file: %s\n", config.ConfigFilePath())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value in the config file. Secrets are read from the environment only.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the analyzer as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		slog.Info("MCP server started (stdio transport)", "model", a.model)
		stdio := server.NewStdioServer(api.NewMCPServer(a.deps, version))
		if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	},
}
