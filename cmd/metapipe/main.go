package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/On-Jun9/MetaPipe/internal/config"
	"github.com/On-Jun9/MetaPipe/internal/pipeline"
	"github.com/On-Jun9/MetaPipe/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	appVersion     = "0.1.0"
	cfgFile        string
	dataDir        string
	jobs           int
	logFile        string
	logJSON        bool
	logLevel       string
	preset         string
	disableMapping bool
	resourceType   string
	presetDesc     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "metapipe",
	Short: "Extract embedded media metadata and map it onto resource properties",
	Long: `MetaPipe reads embedded metadata (EXIF, ID3, audio tags, XML sidecars,
exiftool) from media files, stores it per media, and maps selected fields
onto item and media properties through a configurable crosswalk.`,
	SilenceUsage: true,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|dir>",
	Short: "Create items and media for files and extract their metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Ingest files as they appear in a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

var actionCmd = &cobra.Command{
	Use:   "action <token> <id>...",
	Short: "Run a metadata action on media or items",
	Long: `Tokens: refresh, refresh_map_add, refresh_map_replace, map_add,
map_replace, delete. Refresh tokens need local file storage.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAction,
}

var showCmd = &cobra.Command{
	Use:   "show <media-id>",
	Short: "Print the stored metadata record of a media",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var clearCmd = &cobra.Command{
	Use:   "clear <media-id>",
	Short: "Delete the metadata record of a media, keeping mapped values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
			return p.DeleteMetadata(ctx, args[0])
		})
	},
}

var deleteMediaCmd = &cobra.Command{
	Use:   "delete-media <media-id>",
	Short: "Delete a media with its values and metadata record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
			return p.DeleteMedia(ctx, args[0])
		})
	},
}

var extractorsCmd = &cobra.Command{
	Use:   "extractors",
	Short: "List registered extractors and whether they can run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
			for _, s := range p.Extractors() {
				state := "available"
				if !s.Available {
					state = "unavailable"
				}
				fmt.Printf("%-10s %s\n", s.Name, state)
			}
			return nil
		})
	},
}

var crosswalkCmd = &cobra.Command{
	Use:   "crosswalk",
	Short: "Manage saved crosswalk presets",
}

var crosswalkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pm, err := config.NewPresetManager(cfg.DataDir)
		if err != nil {
			return err
		}
		presets, err := pm.ListPresets()
		if err != nil {
			return err
		}
		for _, p := range presets {
			fmt.Printf("%-20s %3d rules  %s\n", p.Name, len(p.Rules), p.Description)
		}
		return nil
	},
}

var crosswalkSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save the crosswalk of the loaded config as a preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pm, err := config.NewPresetManager(cfg.DataDir)
		if err != nil {
			return err
		}
		return pm.SavePreset(config.ConfigToPreset(cfg, args[0], presetDesc))
	},
}

var crosswalkDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pm, err := config.NewPresetManager(cfg.DataDir)
		if err != nil {
			return err
		}
		return pm.DeletePreset(args[0])
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(appVersion)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd, watchCmd, actionCmd, showCmd, clearCmd, deleteMediaCmd, extractorsCmd, crosswalkCmd, versionCmd)
	crosswalkCmd.AddCommand(crosswalkListCmd, crosswalkSaveCmd, crosswalkDeleteCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file path")
	pf.StringVar(&dataDir, "data-dir", "", "data directory (library, records, files, presets)")
	pf.IntVarP(&jobs, "jobs", "j", 0, "number of concurrent workers (0=auto)")
	pf.StringVar(&logFile, "log-file", "", "log file path")
	pf.BoolVar(&logJSON, "log-json", false, "output JSON logs")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&preset, "preset", "", "use a saved crosswalk preset")
	pf.BoolVar(&disableMapping, "no-map", false, "extract only, never write values")

	actionCmd.Flags().StringVarP(&resourceType, "resource", "r", string(types.ResourceMedia), "resource type of the ids: media or item")
	crosswalkSaveCmd.Flags().StringVar(&presetDesc, "description", "", "preset description")
}

// loadConfig reads --config (or defaults) and applies flag overrides.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if cfgFile != "" {
		cfg, err = config.LoadFromFile(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if dataDir != "" {
		rebase(cfg, dataDir)
	}
	if jobs > 0 {
		cfg.Jobs = jobs
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}
	if logJSON {
		cfg.LogJSON = true
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if preset != "" {
		cfg.CrosswalkPreset = preset
	}
	if disableMapping {
		cfg.DisableMapping = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// rebase moves paths still derived from the old data dir under dir.
func rebase(cfg *config.Config, dir string) {
	old := cfg.DataDir
	for _, path := range []*string{&cfg.LibraryFile, &cfg.LogFile, &cfg.Store.File, &cfg.Files.LocalDir} {
		if rel, err := filepath.Rel(old, *path); err == nil && !strings.HasPrefix(rel, "..") {
			*path = filepath.Join(dir, rel)
		}
	}
	cfg.DataDir = dir
}

// withPipeline builds a pipeline from the flags and runs fn until it
// returns or the process is interrupted.
func withPipeline(fn func(ctx context.Context, p *pipeline.Pipeline) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := pipeline.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, p)
}

func runIngest(cmd *cobra.Command, args []string) error {
	return withPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
		info, err := os.Stat(args[0])
		if err != nil {
			return err
		}
		if info.IsDir() {
			summary, err := p.IngestAll(ctx, args[0])
			if err != nil {
				return err
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d files failed to ingest", summary.Failed)
			}
			return nil
		}
		res, err := p.Ingest(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("item %s, media %s (%d values)\n", res.Item.ID, res.Media.ID, res.Added)
		return nil
	})
}

func runWatch(cmd *cobra.Command, args []string) error {
	return withPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
		return p.Watch(ctx, args[0])
	})
}

func runAction(cmd *cobra.Command, args []string) error {
	action := types.Action(args[0])
	kind := types.ResourceKind(resourceType)
	if !kind.Valid() {
		return fmt.Errorf("invalid resource type %q: must be media or item", resourceType)
	}
	return withPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
		results, err := p.PerformBatch(ctx, kind, args[1:], action)
		for _, r := range results {
			printResult(r)
		}
		return err
	})
}

func printResult(r types.ActionResult) {
	if r.Skipped != "" {
		fmt.Printf("%s  %-20s skipped: %s\n", r.MediaID, r.Action, r.Skipped)
		return
	}
	fmt.Printf("%s  %-20s extracted=%t mapped=%t deleted=%t +%d -%d\n",
		r.MediaID, r.Action, r.Extracted, r.Mapped, r.Deleted, r.Added, r.Removed)
}

func runShow(cmd *cobra.Command, args []string) error {
	return withPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
		rec, err := p.FindMetadata(ctx, args[0])
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	})
}
