// Package main provides the entry point for the karaoke player.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/soulrrrrr/karaoke-app/internal/backend"
	"github.com/soulrrrrr/karaoke-app/internal/lyricsync"
	"github.com/soulrrrrr/karaoke-app/internal/store"
	"github.com/soulrrrrr/karaoke-app/ui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

const defaultBackendURL = "http://127.0.0.1:5000"

// envKeyReplacer maps nested keys to environment names, so backend.url is
// read from KARAOKE_BACKEND_URL.
var envKeyReplacer = strings.NewReplacer(".", "_")

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	backendURL string
	dataDir    string
	ephemeral  bool
	dryAudio   bool
	mouse      bool

	rootCmd = &cobra.Command{
		Use:   "karaoke",
		Short: "Sing along in your terminal",
		Long: paragraph(
			fmt.Sprintf("\nQueue songs, strip their vocals and %s with synced lyrics.", keyword("sing along")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// validateStyle checks if the style is a default style, if not, checks that
// the custom style exists.
func validateStyle(style string) error {
	if style != styles.AutoStyle && styles.DefaultStyles[style] == nil {
		path, err := homedir.Expand(style)
		if err != nil {
			return fmt.Errorf("unable to expand path: %w", err)
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("specified style does not exist: %s", style)
		} else if err != nil {
			return fmt.Errorf("unable to stat file: %w", err)
		}
	}
	return nil
}

func validateOptions(*cobra.Command) error {
	// grab config values from Viper
	backendURL = viper.GetString("backend.url")
	ephemeral = viper.GetBool("store.ephemeral")
	mouse = viper.GetBool("mouse")

	u, err := url.ParseRequestURI(backendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid backend url %q: use http:// or https://", backendURL)
	}

	switch out := viper.GetString("audio.output"); out {
	case "oto":
	case "mock":
		dryAudio = true
	default:
		return fmt.Errorf("unknown audio output %q: use oto or mock", out)
	}

	if viper.GetDuration("lyrics.ttl") <= 0 {
		return errors.New("lyrics.ttl must be positive")
	}

	dataDir = viper.GetString("store.dir")
	if dataDir == "" {
		dataDir, err = defaultDataDir()
		if err != nil {
			return err
		}
	}
	dataDir, err = homedir.Expand(dataDir)
	if err != nil {
		return fmt.Errorf("unable to expand data directory: %w", err)
	}

	if viper.GetBool("debug") {
		if err := logToFile(); err != nil {
			return err
		}
	}
	return nil
}

func defaultDataDir() (string, error) {
	dirs, err := gap.NewScope(gap.User, "karaoke").DataDirs()
	if err != nil || len(dirs) == 0 {
		return "", fmt.Errorf("could not find data directory: %w", err)
	}
	return dirs[0], nil
}

func options(shared bool) appOptions {
	return appOptions{
		BackendURL:   backendURL,
		StatusRate:   viper.GetFloat64("backend.status_rate"),
		DataDir:      dataDir,
		Ephemeral:    ephemeral,
		Shared:       shared,
		LyricsTTL:    viper.GetDuration("lyrics.ttl"),
		SyncInterval: viper.GetDuration("lyrics.sync_interval"),
		DryAudio:     dryAudio,
	}
}

func execute(cmd *cobra.Command, _ []string) error {
	// Without a terminal there is nothing to sing along to; print the
	// queue instead.
	if !term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec
		return printQueue(cmd.OutOrStdout())
	}
	return runTUI(cmd)
}

func runTUI(cmd *cobra.Command) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	// use style set in env, or auto if unset
	if err := validateStyle(cfg.GlamourStyle); err != nil {
		log.Warn("Ignoring glamour style", "err", err)
		cfg.GlamourStyle = styles.AutoStyle
	}
	cfg.EnableMouse = cfg.EnableMouse || mouse

	a, err := newApp(options(false))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("Error shutting down", "err", err)
		}
	}()

	ctx := cmd.Context()
	p := ui.NewProgram(ctx, cfg, a.services())
	a.attach(p)
	watchConfig(a)
	go a.restore(ctx)

	// Run Bubble Tea program
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

// watchConfig applies log level and lyric timing changes while running.
func watchConfig(a *app) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		log.Debug("Configuration changed", "path", e.Name, "op", e.Op.String())
		if viper.GetBool("debug") {
			log.SetLevel(log.DebugLevel)
		} else {
			log.SetLevel(log.InfoLevel)
		}
		a.sync.SetInterval(viper.GetDuration("lyrics.sync_interval"))
	})
	viper.WatchConfig()
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	flags.StringVarP(&backendURL, "backend", "b", defaultBackendURL, "base URL of the song backend")
	flags.StringVar(&dataDir, "data-dir", "", "directory holding the queue and lyrics cache")
	flags.BoolVarP(&ephemeral, "ephemeral", "e", false, "keep state in memory only")
	flags.Bool("debug", false, "write debug logs")
	rootCmd.Flags().BoolVar(&dryAudio, "dry-audio", false, "simulate playback without an audio device")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse support")
	_ = rootCmd.Flags().MarkHidden("mouse")

	// Config bindings
	_ = viper.BindPFlag("backend.url", flags.Lookup("backend"))
	_ = viper.BindPFlag("store.dir", flags.Lookup("data-dir"))
	_ = viper.BindPFlag("store.ephemeral", flags.Lookup("ephemeral"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))

	viper.SetDefault("backend.url", defaultBackendURL)
	viper.SetDefault("backend.status_rate", backend.DefaultStatusRate)
	viper.SetDefault("store.dir", "")
	viper.SetDefault("store.ephemeral", false)
	viper.SetDefault("lyrics.ttl", store.DefaultLyricsTTL)
	viper.SetDefault("lyrics.sync_interval", lyricsync.DefaultInterval)
	viper.SetDefault("audio.output", "oto")

	rootCmd.AddCommand(addCmd, queueCmd, cacheCmd, lrcCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "karaoke")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "karaoke")}, dirs...)
	}

	if c := os.Getenv("KARAOKE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("karaoke")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("karaoke")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "karaoke.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
