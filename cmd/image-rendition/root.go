package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ironsheep/image-rendition-mcp/internal/config"
	"github.com/ironsheep/image-rendition-mcp/internal/imaging"
	"github.com/ironsheep/image-rendition-mcp/internal/rendition"
)

// app holds what every command needs once flags and config are resolved.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	serve := newServeCmd(a)
	root := &cobra.Command{
		Use:   "image-rendition",
		Short: "MCP server for resized, cache-friendly image renditions",
		Long: `image-rendition produces resized copies of source images for static sites.

Each rendition is written under the static directory at a path derived from
the source content and every sizing parameter, so an existing file is always
the correct one and nothing is rendered twice.

Example usage:
  image-rendition                                   # Serve MCP over stdio
  image-rendition render photo.jpg --width 800      # Render one rendition
  image-rendition render photo.jpg --resize fill --width 400 --height 400
  image-rendition render photo.jpg --width 400 --scales 1,2`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		RunE: serve.RunE,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is .image-rendition.yaml)")
	flags.String("static-dir", "", "directory renditions are written under")
	flags.String("output-subdir", "", "subdirectory of the static dir that holds renditions")
	flags.StringSlice("search-path", nil, "directory to search for relative image names (repeatable)")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: text or json")

	_ = a.v.BindPFlag("static_dir", flags.Lookup("static-dir"))
	_ = a.v.BindPFlag("output_subdir", flags.Lookup("output-subdir"))
	_ = a.v.BindPFlag("search_paths", flags.Lookup("search-path"))
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", flags.Lookup("log-format"))

	root.AddCommand(serve, newRenderCmd(a), newVersionCmd())
	return root
}

// init loads configuration and builds the logger.
func (a *app) init() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg
	a.logger = cfg.NewLogger()

	a.logger.Debug("configuration loaded",
		"static_dir", cfg.StaticDir,
		"output_subdir", cfg.OutputSubdir,
		"search_paths", cfg.SearchPaths,
	)
	return nil
}

func (a *app) index() *imaging.Index {
	return imaging.NewIndex(a.cfg.SearchPaths, a.logger)
}

func (a *app) renderer(reg prometheus.Registerer) *rendition.Renderer {
	return rendition.NewRenderer(rendition.RendererOptions{
		StaticDir: a.cfg.StaticDir,
		Keys: rendition.KeyBuilder{
			OutputDir:     filepath.ToSlash(a.cfg.OutputSubdir),
			HashSuffixLen: a.cfg.HashSuffixLen,
		},
		Codec:   imaging.NewCodec(),
		Logger:  a.logger,
		Metrics: rendition.NewMetrics(reg),
	})
}
