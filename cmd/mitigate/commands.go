package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/mitigate/internal/config"
	"github.com/kalambet/mitigate/internal/dossier"
	"github.com/kalambet/mitigate/internal/job"
	"github.com/kalambet/mitigate/internal/narrative"
	"github.com/kalambet/mitigate/internal/report"
	"github.com/kalambet/mitigate/internal/storage"
)

// readInput reads a file argument, with "-" meaning stdin.
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// decodeJobInput accepts either a bare job record or a request-shaped
// document {"job": {...}, "summary": "...", ...}.
func decodeJobInput(data []byte) (job.Record, report.Bundle, error) {
	var wrapped struct {
		Job json.RawMessage `json:"job"`
		report.Bundle
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return job.Record{}, report.Bundle{}, fmt.Errorf("parsing job file: %w", err)
	}

	var rec job.Record
	if len(wrapped.Job) == 0 || string(wrapped.Job) == "null" {
		if err := json.Unmarshal(data, &rec); err != nil {
			return job.Record{}, report.Bundle{}, fmt.Errorf("parsing job record: %w", err)
		}
		return rec, report.Bundle{}, nil
	}
	if err := json.Unmarshal(wrapped.Job, &rec); err != nil {
		return job.Record{}, report.Bundle{}, fmt.Errorf("parsing job record: %w", err)
	}
	return rec, wrapped.Bundle, nil
}

func loadJob(cmd *cobra.Command, path string) (job.Record, report.Bundle, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return job.Record{}, report.Bundle{}, err
	}
	return decodeJobInput(data)
}

// --- format ---

var formatCmd = &cobra.Command{
	Use:   "format <job.json|->",
	Short: "Print the plain-text dossier for a job record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		psychroOnly, _ := cmd.Flags().GetBool("psychro")

		rec, _, err := loadJob(cmd, args[0])
		if err != nil {
			return err
		}

		out := dossier.Format(rec)
		if psychroOnly {
			out = dossier.FormatPsychrometrics(rec.PsychroReadings)
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)

		if unknown := unknownChecklistLabels(rec); len(unknown) > 0 {
			printWarning("unrecognized checklist labels kept as-is: %s", strings.Join(unknown, ", "))
		}
		return nil
	},
}

func unknownChecklistLabels(rec job.Record) []string {
	unknown := rec.Inspection.Checklist.Unknown()
	for _, room := range rec.Rooms {
		unknown = append(unknown, room.Checklist.Unknown()...)
	}
	return unknown
}

func init() {
	formatCmd.Flags().Bool("psychro", false, "print only the psychrometric readings block")
}

// --- report ---

var reportCmd = &cobra.Command{
	Use:   "report <job.json|->",
	Short: "Render a PDF report for a job record",
	Long: `Render a PDF report for a job record.

The input is either a bare job record or {"job": {...}, "summary": "...",
"psychroAnalysis": "...", "scope": "...", "hazardPlan": "..."}.

Examples:
  mitigate report job.json
  mitigate report job.json --generate -o report.pdf
  mitigate report inspect report.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		generate, _ := cmd.Flags().GetBool("generate")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		rec, bundle, err := loadJob(cmd, args[0])
		if err != nil {
			return err
		}

		if generate {
			logger := newLogger(cfg.Log, statusOut)
			dispatcher := newDispatcher(cfg, logger)
			if !dispatcher.Configured() {
				printWarning("OpenAI API key not set; narrative sections will show placeholders")
			}
			printStep("Generating narratives with %s", cfg.LLM.Model)
			bundle = bundleFrom(dispatcher.GenerateBundle(cmd.Context(), rec, narrative.ReportKinds...))
		}

		data, err := report.New(report.Options{Title: cfg.Report.Title}).Render(rec, bundle)
		if err != nil {
			return err
		}

		if output == "" {
			output = report.Filename(rec.JobDetails.JobNumber.String())
		}
		if output == "-" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		printSuccess("Wrote %s (%d bytes)", output, len(data))
		return nil
	},
}

var reportInspectCmd = &cobra.Command{
	Use:   "inspect <report.pdf>",
	Short: "Print the page count and text of a rendered report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		pages, err := report.Inspect(data)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Pages: %d\n", len(pages))
		for _, p := range pages {
			fmt.Fprintf(w, "\n%s\n%s\n", colorize(colorBold, fmt.Sprintf("--- Page %d ---", p.Number)), strings.TrimSpace(p.Text))
		}
		return nil
	},
}

func bundleFrom(texts map[narrative.Kind]string) report.Bundle {
	return report.Bundle{
		Summary:         texts[narrative.KindSummary],
		PsychroAnalysis: texts[narrative.KindPsychrometrics],
		Scope:           texts[narrative.KindScope],
		HazardPlan:      texts[narrative.KindHazard],
	}
}

func init() {
	reportCmd.Flags().StringP("output", "o", "", "output path (default mitigation-report-<jobNumber>.pdf, - for stdout)")
	reportCmd.Flags().Bool("generate", false, "generate all narrative sections before rendering")
	reportCmd.AddCommand(reportInspectCmd)
}

// --- narrative ---

var narrativeCmd = &cobra.Command{
	Use:   "narrative <kind> [job.json|-]",
	Short: "Generate one narrative (summary, psychrometrics, scope, hazard, photo)",
	Long: `Generate one narrative with the configured model and print it.

Examples:
  mitigate narrative summary job.json
  mitigate narrative hazard - < job.json
  mitigate narrative photo --image kitchen.jpg --room Kitchen --checklist "Baseboards Removed"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := narrative.ParseKind(args[0])
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		dispatcher := newDispatcher(cfg, newLogger(cfg.Log, statusOut))

		var text string
		if kind == narrative.KindPhoto {
			in, err := photoInput(cmd)
			if err != nil {
				return err
			}
			text, err = dispatcher.DescribePhoto(cmd.Context(), in)
			if err != nil {
				return narrativeFailure(kind, err)
			}
		} else {
			if len(args) < 2 {
				return fmt.Errorf("a job file is required for %s narratives", kind)
			}
			rec, _, err := loadJob(cmd, args[1])
			if err != nil {
				return err
			}
			text, err = dispatcher.Generate(cmd.Context(), kind, rec)
			if err != nil {
				return narrativeFailure(kind, err)
			}
		}

		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

func narrativeFailure(kind narrative.Kind, err error) error {
	var cfgErr *narrative.ConfigurationError
	if errors.As(err, &cfgErr) {
		return fmt.Errorf("%s: set MITIGATE_OPENAI_API_KEY or OPENAI_API_KEY", kind.Placeholder())
	}
	return fmt.Errorf("%s: %w", kind.Placeholder(), err)
}

func photoInput(cmd *cobra.Command) (narrative.PhotoInput, error) {
	image, _ := cmd.Flags().GetString("image")
	room, _ := cmd.Flags().GetString("room")
	checklist, _ := cmd.Flags().GetString("checklist")

	if image == "" {
		return narrative.PhotoInput{}, fmt.Errorf("--image is required for photo narratives")
	}
	uri, err := imageDataURI(image)
	if err != nil {
		return narrative.PhotoInput{}, err
	}

	in := narrative.PhotoInput{DataURI: uri, RoomName: room}
	for _, item := range strings.Split(checklist, ",") {
		if item = strings.TrimSpace(item); item != "" {
			in.Checklist = append(in.Checklist, item)
		}
	}
	return in, nil
}

// imageDataURI reads an image file into a base64 data URI. Values that are
// already data URIs pass through.
func imageDataURI(path string) (string, error) {
	if strings.HasPrefix(path, "data:") {
		return path, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	mediaType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%s does not look like an image (type %q)", path, mediaType)
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func init() {
	narrativeCmd.Flags().String("image", "", "image file for photo narratives")
	narrativeCmd.Flags().String("room", "", "room name for photo narratives")
	narrativeCmd.Flags().String("checklist", "", "comma-separated room checklist for photo narratives")
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage saved job snapshots on the running server",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved jobs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		query, _ := cmd.Flags().GetString("query")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		params := url.Values{}
		params.Set("limit", fmt.Sprint(limit))
		if query != "" {
			params.Set("q", query)
		}
		resp, err := client.get(cmd.Context(), "/api/jobs?"+params.Encode())
		if err != nil {
			return err
		}

		var jobs []storage.JobSummary
		if err := decodeJSON(resp, &jobs); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if len(jobs) == 0 {
			fmt.Fprintln(w, "No saved jobs found.")
			return nil
		}
		for _, j := range jobs {
			number := j.JobNumber
			if number == "" {
				number = "-"
			}
			fmt.Fprintf(w, "%s  %s  %-10s  %s\n",
				colorize(colorCyan, shortID(j.ID)),
				j.CreatedAt.Local().Format("2006-01-02 15:04"),
				number,
				j.Name,
			)
		}
		return nil
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a saved job as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/jobs/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var snap any
		if err := decodeJSON(resp, &snap); err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

var jobsSaveCmd = &cobra.Command{
	Use:   "save <job.json|->",
	Short: "Save a job record as a named snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")

		rec, _, err := loadJob(cmd, args[0])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/jobs", map[string]any{"name": name, "job": rec})
		if err != nil {
			return err
		}

		var result struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Saved %q as %s", result.Name, result.ID)
		return nil
	},
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/api/jobs/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted job %s", args[0])
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	jobsListCmd.Flags().Int("limit", 20, "maximum number of jobs to list")
	jobsListCmd.Flags().String("query", "", "filter by name or job number")
	jobsSaveCmd.Flags().String("name", "", "snapshot name (defaults to the job number or insured name)")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsSaveCmd)
	jobsCmd.AddCommand(jobsDeleteCmd)
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

		w := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(w, "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value. Secret keys (" + strings.Join(secretKeys(), ", ") + ")\n" +
		"are written to the secrets file instead of config.json.\n\nValid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		if isSecretKey(key) {
			printSuccess("Stored %s", key)
		} else {
			printSuccess("Set %s = %s", key, value)
		}
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func secretKeys() []string {
	var keys []string
	for _, k := range config.ShowAll(config.Config{}) {
		if k.Secret {
			keys = append(keys, k.Key)
		}
	}
	return keys
}

func isSecretKey(key string) bool {
	for _, k := range secretKeys() {
		if k == key {
			return true
		}
	}
	return false
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
