// Package main provides the CLI entrypoint for keyrace.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/ferrovax/keyrace/internal/config"
	"github.com/ferrovax/keyrace/internal/coordinator"
	"github.com/ferrovax/keyrace/internal/generator"
	"github.com/ferrovax/keyrace/internal/logging"
	"github.com/ferrovax/keyrace/internal/model"
	"github.com/ferrovax/keyrace/internal/stats"
	"github.com/ferrovax/keyrace/internal/store"
	"github.com/ferrovax/keyrace/internal/tui"
	"github.com/ferrovax/keyrace/internal/wordlist"
)

const (
	defaultLang       = "en"
	defaultWords      = 25
	defaultCaps       = 0.0
	defaultPunct      = 0.0
	defaultBotLevel   = 3
	defaultDuration   = 120
	defaultWeakTop    = 8
	defaultWeakFactor = 2.0
)

const defaultPunctSet = ".,!?;:\"'{}()[]-=/<>`"

var (
	raceLang       string
	raceWords      int
	raceCaps       float64
	racePunct      float64
	racePunctSet   string
	raceBotLevel   int
	raceDuration   int
	raceFocusWeak  bool
	raceWeakTop    int
	raceWeakFactor float64
	raceDebug      bool

	historyLang  string
	historySince string
	historyLast  int
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "keyrace",
		Short:         "TUI typing race",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runRaceCmd,
	}

	rootCmd.Flags().StringVar(&raceLang, "lang", defaultLang, "language code (default: en)")
	rootCmd.Flags().IntVar(&raceWords, "words", defaultWords, "words per race text")
	rootCmd.Flags().Float64Var(&raceCaps, "caps", defaultCaps, "probability of capitalized first letter (0-1)")
	rootCmd.Flags().Float64Var(&racePunct, "punct", defaultPunct, "punctuation probability per word (0-1)")
	rootCmd.Flags().StringVar(&racePunctSet, "punct-set", defaultPunctSet, "punctuation set")
	rootCmd.Flags().IntVar(&raceBotLevel, "bot-level", defaultBotLevel, "bot difficulty level (1-5)")
	rootCmd.Flags().IntVar(&raceDuration, "duration", defaultDuration, "race time limit in seconds")
	rootCmd.Flags().BoolVar(&raceFocusWeak, "focus-weak", false, "bias race text toward weak characters")
	rootCmd.Flags().IntVar(&raceWeakTop, "weak-top", defaultWeakTop, "number of weak characters to focus on")
	rootCmd.Flags().Float64Var(&raceWeakFactor, "weak-factor", defaultWeakFactor, "weight factor for weak characters")
	rootCmd.Flags().BoolVar(&raceDebug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newLangsCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newRecomputeCmd())

	return rootCmd
}

func runRaceCmd(cmd *cobra.Command, _ []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("keyrace requires an interactive terminal")
	}

	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "lang", &raceLang, fileCfg.Race.Lang)
	applyIntConfig(cmd, "words", &raceWords, fileCfg.Race.Words)
	applyFloatConfig(cmd, "caps", &raceCaps, fileCfg.Race.CapsPct)
	applyFloatConfig(cmd, "punct", &racePunct, fileCfg.Race.PunctPct)
	applyStringConfig(cmd, "punct-set", &racePunctSet, fileCfg.Race.PunctSet)
	applyIntConfig(cmd, "bot-level", &raceBotLevel, fileCfg.Race.BotLevel)
	applyIntConfig(cmd, "duration", &raceDuration, fileCfg.Race.DurationSec)
	applyBoolConfig(cmd, "focus-weak", &raceFocusWeak, fileCfg.Race.FocusWeak)
	applyIntConfig(cmd, "weak-top", &raceWeakTop, fileCfg.Race.WeakTop)
	applyFloatConfig(cmd, "weak-factor", &raceWeakFactor, fileCfg.Race.WeakFactor)

	cfg := model.RaceConfig{
		Lang:        raceLang,
		Words:       raceWords,
		CapsPct:     raceCaps,
		PunctPct:    racePunct,
		PunctSet:    racePunctSet,
		BotLevel:    raceBotLevel,
		DurationSec: raceDuration,
		FocusWeak:   raceFocusWeak,
		WeakTop:     raceWeakTop,
		WeakFactor:  raceWeakFactor,
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}

	wordPath := config.DefaultWordListPath(cfg.Lang)
	words, err := wordlist.LoadWords(wordPath, wordlist.FilterForLang(cfg.Lang))
	if err != nil {
		return wordListLoadError(cfg.Lang, wordPath, err)
	}

	localID, err := config.PlayerID()
	if err != nil {
		return err
	}

	logger, err := logging.Init(config.DefaultLogDir(), raceDebug)
	if err != nil {
		return fmt.Errorf("failed to init logging: %w", err)
	}
	defer func() {
		if serr := logger.Sync(); serr != nil {
			// Best-effort flush on exit.
			_ = serr
		}
	}()

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logger.Warn("failed to close db", zap.Error(cerr))
		}
	}()

	text, err := buildRaceText(cfg, st, words)
	if err != nil {
		return err
	}

	coord, err := coordinator.New(coordinator.Options{
		LocalID:    localID,
		Lang:       cfg.Lang,
		Text:       text,
		DurationMs: int64(cfg.DurationSec) * 1000,
		BotLevel:   cfg.BotLevel,
	}, coordinator.Deps{
		Clock:      coordinator.NewRealClock(),
		Archiver:   st,
		Confidence: st,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to set up race: %w", err)
	}
	defer coord.Close()

	program := tea.NewProgram(tui.NewModel(coord), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func buildRaceText(cfg model.RaceConfig, st *store.Store, words []string) (string, error) {
	gen := generator.New()
	punctRunes := []rune(cfg.PunctSet)

	if cfg.FocusWeak {
		rows, err := st.ListConfidence(context.Background(), cfg.Lang)
		if err != nil {
			return "", fmt.Errorf("failed to load weak chars: %w", err)
		}
		weakSet := stats.SelectWeakChars(rows, cfg.WeakTop)
		if len(weakSet) > 0 {
			return generator.JoinText(gen.GenerateWeighted(words, cfg.Words, cfg.CapsPct, cfg.PunctPct, punctRunes, weakSet, cfg.WeakFactor)), nil
		}
		logErrln("no stats available for weak-char focus yet; using normal generator")
	}
	return generator.JoinText(gen.Generate(words, cfg.Words, cfg.CapsPct, cfg.PunctPct, punctRunes)), nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func newLangsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "langs",
		Short: "List available word list languages",
		Args:  cobra.NoArgs,
		RunE:  runLangsCmd,
	}
}

func runLangsCmd(cmd *cobra.Command, _ []string) error {
	wordlistDir := config.DefaultWordListDir()
	entries, err := os.ReadDir(wordlistDir)
	if err != nil {
		if os.IsNotExist(err) {
			logErrf("No word lists found. Place one word per line at %s/<lang>.txt\n", wordlistDir)
			return fmt.Errorf("word list directory does not exist")
		}
		return fmt.Errorf("failed to read word list directory: %w", err)
	}
	langs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".txt") {
			continue
		}
		langs = append(langs, strings.TrimSuffix(name, ".txt"))
	}
	if len(langs) == 0 {
		logErrf("No word lists found. Place one word per line at %s/<lang>.txt\n", wordlistDir)
		return fmt.Errorf("no word lists found")
	}
	sort.Strings(langs)
	for _, lang := range langs {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), lang); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show race history",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().StringVar(&historyLang, "lang", "", "language filter")
	cmd.Flags().StringVar(&historySince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&historyLast, "last", 0, "limit to last N races")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	var sinceTime *time.Time
	if historySince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", historySince, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		sinceTime = &parsed
	}

	localID, err := config.PlayerID()
	if err != nil {
		return err
	}

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	records, err := st.ListRaces(context.Background(), model.HistoryConfig{
		Lang:  historyLang,
		Since: sinceTime,
		Last:  historyLast,
	})
	if err != nil {
		return fmt.Errorf("failed to list races: %w", err)
	}
	return stats.RenderHistory(cmd.OutOrStdout(), records, localID)
}

func newRecomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute [race-id]",
		Short: "Re-derive race metrics from the stored keystroke log",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRecomputeCmd,
	}
}

func runRecomputeCmd(cmd *cobra.Command, args []string) error {
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	ctx := context.Background()
	raceID := ""
	if len(args) > 0 {
		raceID = args[0]
	} else {
		records, err := st.ListRaces(ctx, model.HistoryConfig{Last: 1})
		if err != nil {
			return fmt.Errorf("failed to list races: %w", err)
		}
		if len(records) == 0 {
			return fmt.Errorf("no races found")
		}
		raceID = records[0].ID
	}

	out, err := st.RecomputeRace(ctx, raceID)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if _, err := fmt.Fprintf(w, "Race %s (%s)\n", out.Record.ID, out.Record.RoomCode); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Stored:     %.2f WPM  %.2f%% accuracy\n", out.Record.HostWPM, out.Record.HostAccuracy); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Recomputed: %.2f WPM  %.2f%% accuracy (%.1fs of keystrokes)\n", out.Metrics.NetWPM, out.Metrics.Accuracy, float64(out.ElapsedMs)/1000); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Drift:      %.2f WPM  %.2f%% accuracy\n", out.WPMDrift, out.AccuracyDrift); err != nil {
		return err
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# keyrace configuration
# Uncomment a value to enable it. CLI flags override config values.

[race]
# lang = "en"             # Language code (default %q)
# words = %d              # Words per race text
# caps = %.2f             # Probability of capitalized first letter (0-1)
# punct = %.2f            # Punctuation probability per word (0-1)
# punct-set = %q          # Punctuation set
# bot-level = %d          # Bot difficulty level (1-5)
# duration = %d           # Race time limit in seconds
# focus-weak = false      # Bias race text toward weak characters
# weak-top = %d           # Number of weak characters to focus on
# weak-factor = %.1f      # Weight factor for weak characters
`,
		defaultLang,
		defaultWords,
		defaultCaps,
		defaultPunct,
		defaultPunctSet,
		defaultBotLevel,
		defaultDuration,
		defaultWeakTop,
		defaultWeakFactor,
	)
}

func validateConfig(cfg model.RaceConfig) error {
	if cfg.Words <= 0 {
		return fmt.Errorf("--words must be > 0")
	}
	if cfg.CapsPct < 0 || cfg.CapsPct > 1 {
		return fmt.Errorf("--caps must be between 0 and 1")
	}
	if cfg.PunctPct < 0 || cfg.PunctPct > 1 {
		return fmt.Errorf("--punct must be between 0 and 1")
	}
	if cfg.PunctSet == "" {
		return fmt.Errorf("--punct-set must not be empty")
	}
	if cfg.BotLevel < 1 || cfg.BotLevel > 5 {
		return fmt.Errorf("--bot-level must be between 1 and 5")
	}
	if cfg.DurationSec <= 0 {
		return fmt.Errorf("--duration must be > 0")
	}
	if cfg.WeakTop < 0 {
		return fmt.Errorf("--weak-top must be >= 0")
	}
	if cfg.WeakFactor < 0 {
		return fmt.Errorf("--weak-factor must be >= 0")
	}
	return nil
}

func wordListLoadError(lang, path string, err error) error {
	lines := []string{
		fmt.Sprintf("failed to load word list: %v", err),
		fmt.Sprintf("expected word list at: %s", path),
		fmt.Sprintf("language %q not found", lang),
		"Run: keyrace langs",
	}
	return fmt.Errorf("%s", strings.Join(lines, "\n"))
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
