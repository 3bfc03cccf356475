package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/promptfabric/internal/config"
	"github.com/kalambet/promptfabric/internal/hardware"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a message through the orchestration pipeline",
	Long: `Send a message through the orchestration pipeline.

Examples:
  promptfabric chat "Explain goroutine scheduling"
  promptfabric chat --session 4f1c... "And what about channels?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := strings.Join(args, " ")
		sessionID, _ := cmd.Flags().GetString("session")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/chat", map[string]any{
			"message":    message,
			"session_id": sessionID,
		})
		if err != nil {
			return err
		}

		var result struct {
			Response  string   `json:"response"`
			SessionID string   `json:"session_id"`
			Flags     []string `json:"flags"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Response)
		if len(result.Flags) > 0 {
			printWarning("degraded: %s", strings.Join(result.Flags, ", "))
		}
		printStatus("Session", "%s", result.SessionID)
		return nil
	},
}

func init() {
	chatCmd.Flags().String("session", "", "session ID to continue")
}

// --- refine ---

var refineCmd = &cobra.Command{
	Use:   "refine <prompt>",
	Short: "Refine a raw prompt into a structured one",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/prompt/refine", map[string]any{
			"prompt": prompt,
		})
		if err != nil {
			return err
		}

		var result struct {
			RefinedPrompt string `json:"refined_prompt"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.RefinedPrompt)
		return nil
	},
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over ingested context",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/context/search", map[string]any{
			"query": query,
			"top_k": limit,
		})
		if err != nil {
			return err
		}

		var result struct {
			Results []struct {
				ID     string  `json:"id"`
				Text   string  `json:"text"`
				Source string  `json:"source"`
				Score  float32 `json:"score"`
			} `json:"results"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Results) == 0 {
			fmt.Println("No results found.")
			return nil
		}

		for i, r := range result.Results {
			fmt.Printf("\n%s [score: %.3f, source: %s]\n", colorize(colorBold, fmt.Sprintf("Result %d", i+1)), r.Score, r.Source)
			text := r.Text
			if len(text) > 500 {
				text = text[:500] + "..."
			}
			fmt.Printf("  %s\n", text)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("limit", 5, "maximum number of results")
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a document into the context index",
	Long: `Ingest a document into the context index.

Examples:
  promptfabric ingest --text "Goroutines multiplex onto OS threads" --tags go
  promptfabric ingest --url https://example.com/article --tags research
  promptfabric ingest --file ./notes.md --title "My notes" --tags notes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		url, _ := cmd.Flags().GetString("url")
		file, _ := cmd.Flags().GetString("file")
		title, _ := cmd.Flags().GetString("title")
		tagsStr, _ := cmd.Flags().GetString("tags")

		if text == "" && url == "" && file == "" {
			return fmt.Errorf("one of --text, --url, or --file is required")
		}

		var tags []string
		if tagsStr != "" {
			tags = strings.Split(tagsStr, ",")
			for i := range tags {
				tags[i] = strings.TrimSpace(tags[i])
			}
		}

		req := map[string]any{}
		if tags != nil {
			req["tags"] = tags
		}
		if title != "" {
			req["title"] = title
		}

		switch {
		case text != "":
			req["content"] = text
		case url != "":
			req["url"] = url
		case file != "":
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			req["data"] = data
			if strings.HasSuffix(strings.ToLower(file), ".pdf") {
				req["kind"] = "pdf"
			} else if strings.HasSuffix(strings.ToLower(file), ".html") {
				req["kind"] = "html"
			}
			if title == "" {
				req["title"] = file
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/context/documents", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued doc %s", result["id"])
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("text", "", "text content to ingest")
	ingestCmd.Flags().String("url", "", "URL to fetch and ingest")
	ingestCmd.Flags().String("file", "", "file path to ingest")
	ingestCmd.Flags().String("title", "", "title for the document")
	ingestCmd.Flags().String("tags", "", "comma-separated tags")
}

// --- detect ---

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect host hardware and recommend a provider and model set",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile := hardware.Detect()
		rec := hardware.Recommend(profile)

		printStatus("OS", "%s", profile.OS)
		printStatus("CPU cores", "%d", profile.CPUCores)
		printStatus("RAM", "%.1f GB", profile.TotalRAMGB)
		printStatus("NVIDIA GPU", "%t", profile.HasNVIDIAGPU)
		if profile.OS == "darwin" {
			printStatus("Apple Silicon", "%t", profile.HasAppleSilicon)
		}
		if profile.OS == "linux" {
			printStatus("AMD GPU", "%t", profile.HasAMDGPU)
		}

		fmt.Println()
		printStatus("Provider", "%s", rec.Provider)
		printStatus("Generator", "%s", rec.Generator)
		printStatus("Refiner", "%s", rec.Refiner)
		printStatus("Validator", "%s", rec.Validator)

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"profile":        profile,
				"recommendation": rec,
			})
		}
		return nil
	},
}

func init() {
	detectCmd.Flags().Bool("json", false, "also print machine-readable JSON")
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

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
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
