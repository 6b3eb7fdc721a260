package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dreamspace-gateway/internal/cache"
	"dreamspace-gateway/internal/config"
	"dreamspace-gateway/internal/design"
	"dreamspace-gateway/internal/imaging"
	"dreamspace-gateway/internal/llm"
	"dreamspace-gateway/internal/styles"
	"dreamspace-gateway/pkg/logging/logging"
)

var (
	version = "dev"
	commit  = "none"
)

// App holds the CLI's dependencies so tests can swap them.
type App struct {
	Out        io.Writer
	Err        io.Writer
	LoadConfig func(path string) (*config.Config, error)
	NewClient  func(cfg llm.Config, logger *zap.Logger) (llm.Client, error)
	// Executor overrides the retry executor built from config.
	Executor *llm.Executor
}

func DefaultApp() *App {
	return &App{
		Out:        os.Stdout,
		Err:        os.Stderr,
		LoadConfig: config.LoadFrom,
		NewClient:  llm.NewClient,
	}
}

func main() {
	if err := DefaultApp().newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is everything a command needs once config has been loaded.
type env struct {
	svc   *design.Service
	cache *cache.Cache
	close func()
}

type rootFlags struct {
	config  string
	verbose bool
}

func (app *App) newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "dreamctl",
		Short: "Restyle room photos and inspect the response cache",
		Long: `dreamctl runs the DreamSpace design operations from the command line.

Progress messages are written to stderr; results go to stdout.

Examples:
  dreamctl redesign living-room.jpg --style Japandi -o japandi.png
  dreamctl advice living-room.jpg --style "Mid-Century Modern"
  dreamctl shop living-room.jpg
  dreamctl cache stats`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(app.Out)
	cmd.SetErr(app.Err)

	cmd.PersistentFlags().StringVarP(&flags.config, "config", "c", config.DefaultConfigFile, "path to YAML config")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log at the configured level instead of warn")

	cmd.AddCommand(
		app.newRedesignCmd(flags),
		app.newAdviceCmd(flags),
		app.newShopCmd(flags),
		app.newDescribeCmd(flags),
		app.newStylesCmd(),
		app.newCacheCmd(flags),
	)
	return cmd
}

func (app *App) newRedesignCmd(flags *rootFlags) *cobra.Command {
	var style, output string

	cmd := &cobra.Command{
		Use:   "redesign <image>",
		Short: "Generate a restyled version of a room photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withEnv(flags, func(ctx context.Context, e *env) error {
				src, err := readImage(args[0])
				if err != nil {
					return err
				}

				out, err := e.svc.GenerateRedesign(ctx, src, style, app.status)
				if err != nil {
					return describeError(err)
				}

				img, err := imaging.ParseDataURI(out)
				if err != nil {
					return fmt.Errorf("decode result: %w", err)
				}
				path := output
				if path == "" {
					path = "redesign" + extensionFor(img.MIMEType)
				}
				if err := os.WriteFile(path, img.Data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", path, err)
				}
				fmt.Fprintf(app.Out, "Saved: %s (%s)\n", path, humanize.Bytes(uint64(len(img.Data))))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&style, "style", "s", "", "target style, e.g. Japandi")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default redesign.<ext>)")
	_ = cmd.MarkFlagRequired("style")
	return cmd
}

func (app *App) newAdviceCmd(flags *rootFlags) *cobra.Command {
	var style string

	cmd := &cobra.Command{
		Use:   "advice <image>",
		Short: "Critique a room photo against a style",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withEnv(flags, func(ctx context.Context, e *env) error {
				src, err := readImage(args[0])
				if err != nil {
					return err
				}
				advice, err := e.svc.GetAdvice(ctx, src, style, app.status)
				if err != nil {
					return describeError(err)
				}
				return app.printJSON(advice)
			})
		},
	}
	cmd.Flags().StringVarP(&style, "style", "s", "", "target style, e.g. Coastal")
	_ = cmd.MarkFlagRequired("style")
	return cmd
}

func (app *App) newShopCmd(flags *rootFlags) *cobra.Command {
	var withImages bool

	cmd := &cobra.Command{
		Use:   "shop <image>",
		Short: "Detect shoppable products in a room photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withEnv(flags, func(ctx context.Context, e *env) error {
				src, err := readImage(args[0])
				if err != nil {
					return err
				}
				look, err := e.svc.ShopTheLook(ctx, src, app.status)
				if err != nil {
					return describeError(err)
				}
				if !withImages {
					// data URIs make the output unreadable
					trimmed := *look
					trimmed.Image = ""
					trimmed.Products = make([]llm.Product, len(look.Products))
					for i, p := range look.Products {
						if strings.HasPrefix(p.Image, "data:") {
							p.Image = "(" + humanize.Bytes(uint64(len(p.Image))) + " crop)"
						}
						trimmed.Products[i] = p
					}
					look = &trimmed
				}
				return app.printJSON(look)
			})
		},
	}
	cmd.Flags().BoolVar(&withImages, "with-images", false, "include image data URIs in the output")
	return cmd
}

func (app *App) newDescribeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <style>",
		Short: "Describe an interior style in a sentence or two",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withEnv(flags, func(ctx context.Context, e *env) error {
				fmt.Fprintln(app.Out, e.svc.DescribeStyle(ctx, args[0]))
				return nil
			})
		},
	}
}

func (app *App) newStylesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "styles",
		Short: "List the built-in style catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VALUE\tLABEL\tDESCRIPTION")
			for _, s := range styles.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Value, s.Label, s.Description)
			}
			return tw.Flush()
		},
	}
}

func (app *App) newCacheCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or prune the durable response cache",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show durable cache entry counts and size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withEnv(flags, func(ctx context.Context, e *env) error {
				st, err := e.cache.Stats(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Out, "Entries: %s\n", humanize.Comma(int64(st.Entries)))
				fmt.Fprintf(app.Out, "Expired: %s\n", humanize.Comma(int64(st.Expired)))
				fmt.Fprintf(app.Out, "Size:    %s\n", humanize.Bytes(uint64(st.Bytes)))
				fmt.Fprintf(app.Out, "TTL:     %s\n", e.cache.TTL())
				return nil
			})
		},
	}

	var oldest bool
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Remove expired entries, or the oldest share with --oldest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withEnv(flags, func(ctx context.Context, e *env) error {
				var (
					n   int
					err error
				)
				if oldest {
					n, err = e.cache.Prune(ctx)
				} else {
					n, err = e.cache.PurgeExpired(ctx)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Out, "Removed %s %s\n", humanize.Comma(int64(n)), plural(n, "entry", "entries"))
				return nil
			})
		},
	}
	prune.Flags().BoolVar(&oldest, "oldest", false, "evict the oldest entries instead of only expired ones")

	cmd.AddCommand(stats, prune)
	return cmd
}

// withEnv loads config, wires the service and runs fn with a context that
// is cancelled on SIGINT or SIGTERM.
func (app *App) withEnv(flags *rootFlags, fn func(ctx context.Context, e *env) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := app.LoadConfig(flags.config)
	if err != nil {
		return err
	}

	level := "warn"
	if flags.verbose {
		level = cfg.Logging.Level
	}
	logger := logging.New(cfg.Logging.Env, level)
	defer logger.Sync()

	e, err := app.open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer e.close()

	return fn(ctx, e)
}

func (app *App) open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*env, error) {
	var redisClient *redis.Client
	if cfg.Cache.Store == "redis" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
	}

	c, closeCache, err := cache.NewFromConfig(cfg.CacheFactory(), redisClient, logger)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, err
	}

	client, err := app.NewClient(cfg.LLM(), logger)
	if err != nil {
		_ = closeCache()
		return nil, err
	}

	executor := app.Executor
	if executor == nil {
		executor = llm.NewExecutor(cfg.RetryPolicy(), logger)
	}

	svc, err := design.NewService(design.Options{
		Client:     client,
		Cache:      c,
		Executor:   executor,
		Transcoder: imaging.NewTranscoder(logger),
		Pool:       design.NewPool(cfg.Gemini.Concurrency),
		Logger:     logger,
	})
	if err != nil {
		_ = closeCache()
		return nil, err
	}

	return &env{
		svc:   svc,
		cache: c,
		close: func() {
			if closer, ok := client.(interface{ Close() error }); ok {
				_ = closer.Close()
			}
			_ = closeCache()
			if redisClient != nil {
				_ = redisClient.Close()
			}
		},
	}, nil
}

func (app *App) status(msg string) {
	fmt.Fprintln(app.Err, msg)
}

func (app *App) printJSON(v any) error {
	enc := json.NewEncoder(app.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readImage loads a local photo as a data URI.
func readImage(path string) (string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%s does not look like an image (%s)", path, mime)
	}
	return imaging.DataURI{MIMEType: mime, Data: data}.String(), nil
}

// describeError prefers the user-facing message of classified failures.
func describeError(err error) error {
	lerr := llm.Classify(err)
	if lerr == nil {
		return nil
	}
	if lerr.Cooldown > 0 {
		return fmt.Errorf("%s (retry in %s)", lerr.Message, lerr.Cooldown)
	}
	return fmt.Errorf("%s [%s]", lerr.Message, lerr.Kind)
}

func extensionFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
