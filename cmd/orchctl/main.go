package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fooocus-orchestrator/pkg/types"
)

var (
	apiBaseURL string
	verbose    bool
	timeout    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "orchctl",
		Short: "GPU orchestration backend CLI",
		Long:  "Command-line client for the GPU orchestration backend's HTTP surface",
	}

	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api-url", "http://localhost:8080", "API server base URL")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Print raw JSON responses")
	rootCmd.PersistentFlags().IntVar(&timeout, "timeout", 30, "Request timeout in seconds")

	rootCmd.AddCommand(
		generateCmd(),
		statusCmd(),
		stopCmd(),
		gpusCmd(),
		historyCmd(),
		settingsCmd(),
		healthCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Submit an image generation task",
		Args:  cobra.ExactArgs(1),
		RunE:  runGenerate,
	}
	cmd.Flags().String("negative-prompt", "", "Negative prompt")
	cmd.Flags().StringSlice("style", nil, "Style selection, repeatable")
	cmd.Flags().String("performance", "Speed", "Performance selection")
	cmd.Flags().String("aspect-ratio", "1152*896", "Aspect ratio selection")
	cmd.Flags().Int("image-number", 1, "Number of images to generate")
	cmd.Flags().Int64("seed", 0, "Image seed")
	cmd.Flags().Bool("seed-random", true, "Randomize the seed")
	return cmd
}

func runGenerate(cmd *cobra.Command, args []string) error {
	negativePrompt, _ := cmd.Flags().GetString("negative-prompt")
	styles, _ := cmd.Flags().GetStringSlice("style")
	performance, _ := cmd.Flags().GetString("performance")
	aspectRatio, _ := cmd.Flags().GetString("aspect-ratio")
	imageNumber, _ := cmd.Flags().GetInt("image-number")
	seed, _ := cmd.Flags().GetInt64("seed")
	seedRandom, _ := cmd.Flags().GetBool("seed-random")

	req := types.GenerateRequest{
		Prompt:                args[0],
		NegativePrompt:        negativePrompt,
		StyleSelections:       styles,
		PerformanceSelection:  performance,
		AspectRatiosSelection: aspectRatio,
		ImageNumber:           imageNumber,
		ImageSeed:             seed,
		SeedRandom:            seedRandom,
	}

	body, err := makeAPIRequest("POST", "/generate", req)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Printf("%s\n", body)
		return nil
	}

	var resp types.GenerateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		fmt.Printf("%s\n", body)
		return nil
	}
	if resp.Error != "" {
		fmt.Printf("Task %s failed to submit: %s\n", resp.TaskID, resp.Error)
		return nil
	}
	fmt.Printf("Task submitted: %s (status: %s, images: %d, gpus: %d)\n", resp.TaskID, resp.Status, resp.TotalImages, len(resp.GPUs))
	return nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [task-id]",
		Short: "Get task status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := makeAPIRequest("GET", "/status/"+args[0], nil)
			if err != nil {
				return err
			}
			if verbose {
				fmt.Printf("%s\n", body)
				return nil
			}
			var status types.TaskStatusResponse
			if err := json.Unmarshal(body, &status); err != nil {
				fmt.Printf("%s\n", body)
				return nil
			}
			fmt.Printf("Task ID: %s\nStatus: %s\nProgress: %d%%\n", status.TaskID, status.Status, status.Percentage)
			if status.StatusText != "" {
				fmt.Printf("Status text: %s\n", status.StatusText)
			}
			for _, r := range status.Results {
				fmt.Printf("Result: %s\n", r)
			}
			for _, e := range status.Errors {
				fmt.Printf("Error: %s\n", e)
			}
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop every task currently running on every GPU",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := makeAPIRequest("POST", "/stop", nil)
			if err != nil {
				return err
			}
			if verbose {
				fmt.Printf("%s\n", body)
				return nil
			}
			var resp types.StopResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				fmt.Printf("%s\n", body)
				return nil
			}
			fmt.Printf("Stop requested for %d task(s) (success: %v)\n", resp.Requested, resp.Success)
			return nil
		},
	}
}

func gpusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gpus",
		Short: "List configured GPU slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := makeAPIRequest("GET", "/gpus", nil)
			if err != nil {
				return err
			}
			if verbose {
				fmt.Printf("%s\n", body)
				return nil
			}
			var resp types.GPUListResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				fmt.Printf("%s\n", body)
				return nil
			}
			fmt.Printf("Multi-GPU: %v, GPU count: %d\n", resp.MultiGPUEnabled, resp.GPUCount)
			for _, g := range resp.GPUs {
				fmt.Printf("  device %d | %s | weight %d | busy %v | port %d\n", g.Device, g.Name, g.Weight, g.Busy, g.Port)
			}
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past generations",
		RunE:  runHistory,
	}
	cmd.Flags().Int("limit", 50, "Page size")
	cmd.Flags().Int("offset", 0, "Page offset")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	body, err := makeAPIRequest("GET", fmt.Sprintf("/history?limit=%d&offset=%d", limit, offset), nil)
	if err != nil {
		return err
	}
	if verbose {
		fmt.Printf("%s\n", body)
		return nil
	}
	var page types.HistoryPage
	if err := json.Unmarshal(body, &page); err != nil {
		fmt.Printf("%s\n", body)
		return nil
	}
	fmt.Printf("Page %d/%d (%d of %d total)\n", page.Page, page.TotalPages, len(page.Items), page.Total)
	for _, item := range page.Items {
		fmt.Printf("  %s\n", item.RelativePath)
	}
	return nil
}

func settingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Show the model/style/sampler catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := makeAPIRequest("GET", "/settings", nil)
			if err != nil {
				return err
			}
			fmt.Printf("%s\n", body)
			return nil
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check backend health",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := makeAPIRequest("GET", "/health", nil)
			if err != nil {
				return err
			}
			fmt.Printf("%s\n", strings.TrimSpace(string(body)))
			return nil
		},
	}
}

func makeAPIRequest(method, path string, data interface{}) ([]byte, error) {
	var body []byte
	var err error

	if data != nil {
		body, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	client := &http.Client{Timeout: time.Duration(timeout) * time.Second}
	req, err := http.NewRequest(method, apiBaseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach API: %w", err)
	}
	defer resp.Body.Close()

	respBody := new(bytes.Buffer)
	respBody.ReadFrom(resp.Body)

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, respBody.String())
	}

	return respBody.Bytes(), nil
}
