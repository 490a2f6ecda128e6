package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/satoruisaka/TwistedDebate/internal/analyzer"
	"github.com/satoruisaka/TwistedDebate/internal/config"
	"github.com/satoruisaka/TwistedDebate/internal/core"
	"github.com/satoruisaka/TwistedDebate/internal/export"
	"github.com/satoruisaka/TwistedDebate/internal/format"
	"github.com/satoruisaka/TwistedDebate/internal/ollama"
	"github.com/satoruisaka/TwistedDebate/internal/session"
	"github.com/satoruisaka/TwistedDebate/internal/storage"
	"github.com/satoruisaka/TwistedDebate/web/handlers"
)

var (
	configPath string
	dbPath     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "twistd",
	Short: "Multi-participant AI debate tool",
	Long: `twistd orchestrates structured debates between local Ollama models.

Pick a format, seat your participants (models or yourself), and watch
the debate unfold turn by turn with live convergence metrics.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: ~/.twistd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: ~/.twistd/twistd.db)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(formatsCmd)
	rootCmd.AddCommand(modesCmd)
	rootCmd.AddCommand(tonesCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Archive.DBPath = dbPath
	}
	return cfg, nil
}

func getStorage(cfg *config.Config) (storage.Storage, error) {
	store, err := storage.NewSQLiteStorage(cfg.Archive.DBPath)
	if err != nil {
		return nil, err
	}

	if err := store.Initialize(); err != nil {
		store.Close()
		return nil, err
	}

	return store, nil
}

// run command - create and run a debate
var runCmd = &cobra.Command{
	Use:   "run [topic]",
	Short: "Start a new debate",
	Long: `Create and run a new debate on the given topic.

Each -p flag seats one participant, in the format's role order. A seat
is either "human" or "model[:mode[:tone]]".

Examples:
  twistd run "Is remote work here to stay?"
  twistd run "Universal basic income" --format panel -p human -p gemma3:27b:echo_er -p mistral:invert_er:satirical
  twistd run "Ship it now or polish first" -p human -p gemma3:27b:so_what_er:technical -t 5 -g 8`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDebate,
}

var (
	formatFlag       string
	participantFlags []string
	turnsFlag        int
	gainFlag         int
	exportFlag       string
)

func init() {
	runCmd.Flags().StringVarP(&formatFlag, "format", "f", "", "Debate format (default from config)")
	runCmd.Flags().StringArrayVarP(&participantFlags, "participant", "p", nil, "Participant seat: human or model[:mode[:tone]]")
	runCmd.Flags().IntVarP(&turnsFlag, "turns", "t", 0, "Number of debate rounds (default from config)")
	runCmd.Flags().IntVarP(&gainFlag, "gain", "g", 0, "Distortion gain 1-10 (default from config)")
	runCmd.Flags().StringVarP(&exportFlag, "export", "e", "", "Export transcript when done (markdown, json, pdf)")
}

// parseParticipantSpec turns a -p value into a participant for the
// given seat. "human" seats the operator; anything else is
// model[:mode[:tone]].
func parseParticipantSpec(spec string, role format.Role, defaultModel string) (core.Participant, error) {
	p := core.Participant{Role: role.Name}

	if strings.EqualFold(spec, "human") {
		p.Actor = core.ActorHuman
		return p, nil
	}

	parts := strings.SplitN(spec, ":", 3)
	p.Actor = parts[0]
	if p.Actor == "" {
		p.Actor = defaultModel
	}
	if len(parts) > 1 {
		p.Mode = core.DistortionMode(parts[1])
	}
	if len(parts) > 2 {
		p.Tone = core.Tone(parts[2])
	}
	return p, nil
}

// defaultSeats builds a seat list for a run with no -p flags: the
// default model in every minimum seat. Returns a fresh slice so flag
// state is never touched.
func defaultSeats(spec format.Spec, model string) ([]string, error) {
	roles, err := spec.ExpandRoles(nil)
	if err != nil {
		return nil, err
	}
	seats := make([]string, len(roles))
	for i := range seats {
		seats[i] = model
	}
	return seats, nil
}

// seatParticipants expands the format's roles to match the number of
// -p flags and pairs them up. Formats have at most one group role, so
// the group size is whatever seats remain after the singular roles.
func seatParticipants(spec format.Spec, specs []string, defaultModel string) ([]core.Participant, error) {
	counts := map[string]int{}
	remaining := len(specs)
	for _, rs := range spec.Roles {
		if rs.Singular() {
			remaining--
		}
	}
	for _, rs := range spec.Roles {
		if !rs.Singular() {
			counts[rs.Base] = remaining
		}
	}

	roles, err := spec.ExpandRoles(counts)
	if err != nil {
		return nil, err
	}
	if len(roles) != len(specs) {
		return nil, fmt.Errorf("format %s needs %d participants, got %d", spec.ID, len(roles), len(specs))
	}

	participants := make([]core.Participant, len(specs))
	for i, s := range specs {
		p, err := parseParticipantSpec(s, roles[i], defaultModel)
		if err != nil {
			return nil, err
		}
		participants[i] = p
	}
	return participants, nil
}

func runDebate(cmd *cobra.Command, args []string) error {
	topic := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	formatID := formatFlag
	if formatID == "" {
		formatID = cfg.Defaults.Format
	}
	spec, err := format.Get(format.ID(formatID))
	if err != nil {
		return err
	}

	seats := participantFlags
	if len(seats) == 0 {
		seats, err = defaultSeats(spec, cfg.Ollama.DefaultModel)
		if err != nil {
			return err
		}
	}

	participants, err := seatParticipants(spec, seats, cfg.Ollama.DefaultModel)
	if err != nil {
		return err
	}

	iterations := turnsFlag
	if iterations == 0 {
		iterations = cfg.Defaults.MaxIterations
	}
	gain := gainFlag
	if gain == 0 {
		gain = cfg.Defaults.Gain
	}

	client := ollama.NewClient(cfg.Ollama.URL)
	stdin := bufio.NewReader(os.Stdin)

	var sess *session.Session
	sess, err = session.New(session.Config{
		Topic:         topic,
		Format:        format.ID(formatID),
		Participants:  participants,
		MaxIterations: iterations,
		Gain:          gain,
	}, client, analyzer.New(client, cfg.Ollama.MetricsModel), session.Callbacks{
		OnMessage: func(msg core.Message) {
			printMessage(msg)
		},
		OnMetrics: func(m core.Metrics) {
			fmt.Printf("\n📊 Round %d metrics: agreement %d/10, %s, sensitivity %s, bias %s, drift %s\n",
				m.Iteration, m.AgreementScore, m.Convergence,
				m.Sensitivity, m.BiasLevel, m.TopicDrift)
		},
		OnAwaitingInput: func(role string, iteration int) {
			fmt.Printf("\n⌨️  Your turn (%s, round %d). Type your response and press Enter:\n> ", role, iteration)
			line, err := stdin.ReadString('\n')
			if err != nil {
				return
			}
			if err := sess.SubmitInput(role, iteration, strings.TrimSpace(line)); err != nil {
				fmt.Fprintf(os.Stderr, "input rejected: %v\n", err)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create debate: %w", err)
	}

	run := sess.Snapshot()
	fmt.Printf("\n🎭 Starting Debate: %s\n", run.Topic)
	fmt.Printf("   Format: %s | Rounds: %d | Gain: %d/10\n", spec.Name, iterations, gain)
	for _, p := range participants {
		fmt.Printf("   %s: %s\n", p.Role, p.DisplayName())
	}
	fmt.Printf("   ID: %s\n\n", run.ID)
	fmt.Println(strings.Repeat("─", 60))

	// Setup signal handling
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n\nInterrupted.")
		cancel()
	}()

	if err := sess.Run(ctx); err != nil {
		if ctx.Err() != nil {
			fmt.Println("\nDebate abandoned.")
			return nil
		}
		return fmt.Errorf("debate failed: %w", err)
	}

	fmt.Println(strings.Repeat("═", 60))
	fmt.Println("🏁 Debate complete")

	// Archive
	store, err := getStorage(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not open archive: %v\n", err)
	} else {
		defer store.Close()
		final := sess.Snapshot()
		if err := store.SaveRun(&final, sess.Messages(), sess.Metrics()); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not archive debate: %v\n", err)
		}
	}

	if exportFlag != "" {
		final := sess.Snapshot()
		rec, err := export.WriteRecord(cfg.Outputs.Dir, export.Format(exportFlag), &final, sess.Messages(), sess.Metrics())
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		fmt.Printf("\nExported to %s\n", rec.Path)
	}

	return nil
}

func printMessage(msg core.Message) {
	if msg.Iteration == 0 {
		fmt.Printf("\n📢 %s (opening)\n", msg.Speaker)
	} else {
		fmt.Printf("\n📢 %s [Turn %d]\n", msg.Speaker, msg.Iteration)
	}
	fmt.Println(strings.Repeat("─", 40))
	fmt.Println(msg.Content)
	fmt.Println()
}

// resolveRunID finds an archived run by ID prefix.
func resolveRunID(store storage.Storage, prefix string) (string, error) {
	runs, err := store.ListRuns(100, 0)
	if err != nil {
		return "", err
	}
	for _, r := range runs {
		if strings.HasPrefix(r.ID, prefix) {
			return r.ID, nil
		}
	}
	return "", fmt.Errorf("debate not found: %s", prefix)
}

// list command - list archived debates
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived debates",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := getStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(50, 0)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No debates found. Start one with: twistd run \"Your topic\"")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTOPIC\tFORMAT\tSTATUS\tMESSAGES\tCREATED")
		fmt.Fprintln(w, "──\t─────\t──────\t──────\t────────\t───────")

		for _, r := range runs {
			shortID := r.ID
			if len(shortID) > 8 {
				shortID = shortID[:8]
			}
			shortTopic := r.Topic
			if len(shortTopic) > 40 {
				shortTopic = shortTopic[:37] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				shortID,
				shortTopic,
				r.Format,
				r.Status,
				r.MessageCount,
				r.CreatedAt.Format("2006-01-02 15:04"),
			)
		}
		w.Flush()

		return nil
	},
}

// show command - show an archived debate
var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show an archived debate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := getStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := resolveRunID(store, args[0])
		if err != nil {
			return err
		}

		run, metrics, err := store.GetRun(id)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("debate not found: %s", args[0])
		}
		messages, err := store.GetMessages(id)
		if err != nil {
			return err
		}

		fmt.Printf("\n🎭 Debate: %s\n", run.Topic)
		fmt.Printf("   ID: %s\n", run.ID)
		fmt.Printf("   Format: %s\n", run.Format)
		fmt.Printf("   Status: %s\n", run.Status)
		fmt.Printf("   Gain: %d/10\n", run.Gain)
		for _, p := range run.Participants {
			fmt.Printf("   %s: %s\n", p.Role, p.DisplayName())
		}
		fmt.Printf("   Created: %s\n", run.CreatedAt.Format(time.RFC3339))

		for _, msg := range messages {
			printMessage(msg)
		}

		if metrics != nil {
			fmt.Println(strings.Repeat("═", 60))
			fmt.Printf("📊 Final metrics: agreement %d/10, %s, sensitivity %s, bias %s, drift %s\n",
				metrics.AgreementScore, metrics.Convergence,
				metrics.Sensitivity, metrics.BiasLevel, metrics.TopicDrift)
		}

		return nil
	},
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete an archived debate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := getStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := resolveRunID(store, args[0])
		if err != nil {
			return err
		}

		if err := store.DeleteRun(id); err != nil {
			return err
		}

		fmt.Printf("Deleted debate: %s\n", id)
		return nil
	},
}

// export command - export an archived debate
var exportFormatFlag string

var exportCmd = &cobra.Command{
	Use:   "export [id]",
	Short: "Export an archived debate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := getStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := resolveRunID(store, args[0])
		if err != nil {
			return err
		}

		run, metrics, err := store.GetRun(id)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("debate not found: %s", args[0])
		}
		messages, err := store.GetMessages(id)
		if err != nil {
			return err
		}

		m := core.BaselineMetrics()
		if metrics != nil {
			m = *metrics
		}
		rec, err := export.WriteRecord(cfg.Outputs.Dir, export.Format(exportFormatFlag), run, messages, m)
		if err != nil {
			return err
		}

		fmt.Printf("Exported to %s\n", rec.Path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormatFlag, "format", "f", "markdown", "Export format (markdown, json, pdf)")
}

// formats command
var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List available debate formats",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("\nAvailable Formats:")
		fmt.Println(strings.Repeat("─", 60))

		for _, s := range format.Catalog() {
			fmt.Printf("\n%s (%s)\n", s.Name, s.ID)
			fmt.Printf("  %s\n", s.Description)
			for _, rs := range s.Roles {
				seats := fmt.Sprintf("%d", rs.Min)
				if rs.Max != rs.Min {
					seats = fmt.Sprintf("%d-%d", rs.Min, rs.Max)
				}
				human := ""
				if rs.HumanAllowed {
					human = ", human allowed"
				}
				fmt.Printf("    %s: %s seats%s\n", rs.Base, seats, human)
			}
		}
	},
}

// modes command
var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "List available distortion modes",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("\nAvailable Distortion Modes:")
		fmt.Println(strings.Repeat("─", 60))

		for _, m := range core.Modes() {
			fmt.Printf("\n%s\n", m)
			fmt.Printf("  %s\n", core.ModeDescriptions[m])
		}
	},
}

// tones command
var tonesCmd = &cobra.Command{
	Use:   "tones",
	Short: "List available tones",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("\nAvailable Tones:")
		fmt.Println(strings.Repeat("─", 60))

		for _, t := range core.Tones() {
			fmt.Printf("\n%s\n", t)
			fmt.Printf("  %s\n", core.ToneDescriptions[t])
		}
	},
}

// models command - list models known to Ollama
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models available in Ollama",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		client := ollama.NewClient(cfg.Ollama.URL)
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		models, err := client.ListModels(ctx)
		if err != nil {
			return fmt.Errorf("could not reach Ollama at %s: %w", cfg.Ollama.URL, err)
		}

		if len(models) == 0 {
			fmt.Println("No models installed. Pull one with: ollama pull gemma3:27b")
			return nil
		}

		fmt.Println("\nAvailable Models:")
		fmt.Println(strings.Repeat("─", 40))
		for _, m := range models {
			fmt.Printf("  %s\n", m)
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}

		cfg := config.Default()
		if err := cfg.SaveTo(path); err != nil {
			return err
		}
		fmt.Printf("Wrote config to %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Printf("ollama.url: %s\n", cfg.Ollama.URL)
		fmt.Printf("ollama.default_model: %s\n", cfg.Ollama.DefaultModel)
		fmt.Printf("ollama.metrics_model: %s\n", cfg.Ollama.MetricsModel)
		fmt.Printf("server.port: %d\n", cfg.Server.Port)
		fmt.Printf("defaults.format: %s\n", cfg.Defaults.Format)
		fmt.Printf("defaults.max_iterations: %d\n", cfg.Defaults.MaxIterations)
		fmt.Printf("defaults.gain: %d\n", cfg.Defaults.Gain)
		fmt.Printf("outputs.dir: %s\n", cfg.Outputs.Dir)
		fmt.Printf("archive.db_path: %s\n", cfg.Archive.DBPath)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

// serve command - start web server
var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		store, err := getStorage(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer store.Close()

		client := ollama.NewClient(cfg.Ollama.URL)
		h := handlers.New(cfg, client, client, store)

		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		server := &http.Server{
			Addr:    addr,
			Handler: h.Routes(),
		}

		fmt.Printf("\n🌐 Starting twistd web server on http://localhost:%d\n", cfg.Server.Port)
		fmt.Println("Press Ctrl+C to stop the server")

		// Handle shutdown
		go func() {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			<-sigCh
			fmt.Println("\nShutting down...")
			server.Close()
		}()

		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Server port (default from config)")
}
