// Command replytester runs the reply pipeline once against an in-memory chat
// log, for checking prompts and provider settings by hand.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-mentor/backend/internal/config"
	"github.com/zhouzirui/z-mentor/backend/internal/model/chatlog"
	"github.com/zhouzirui/z-mentor/backend/internal/observe"
	"github.com/zhouzirui/z-mentor/backend/internal/service/ai"
	chatlogservice "github.com/zhouzirui/z-mentor/backend/internal/service/chatlog"
	"github.com/zhouzirui/z-mentor/backend/internal/service/responder"
	"github.com/zhouzirui/z-mentor/backend/internal/service/secret"
)

type options struct {
	text        string
	name        string
	historyPath string
	dryRun      bool
	timeout     time.Duration
	verbose     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "replytester",
		Short: "Run the mentor reply pipeline once",
		Long: `Seeds an in-memory chat log from --history, appends --text as a new user
entry and runs the reply pipeline on it with the configured provider.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("配置加载失败: %w", err)
			}

			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			logger, err := observe.NewLogger(observe.LoggerConfig{Level: level, Development: true})
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			var generator responder.Generator
			if !opts.dryRun {
				secrets := secret.Chain{secret.FileProvider{Dir: cfg.Secrets.Dir}, secret.EnvProvider{}}
				if generator, err = ai.NewFromConfig(ctx, cfg, secrets, logger, nil); err != nil {
					return err
				}
			}
			return runOnce(ctx, cmd.OutOrStdout(), cfg.Responder, opts, generator, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.text, "text", "", "用户消息文本 (必填)")
	flags.StringVar(&opts.name, "name", "tester", "用户名")
	flags.StringVar(&opts.historyPath, "history", "", "JSON 数组格式的历史日志文件")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "只打印提示词，不调用生成服务")
	flags.DurationVar(&opts.timeout, "timeout", 60*time.Second, "整体超时时间")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "输出调试日志")
	_ = cmd.MarkFlagRequired("text")

	return cmd
}

// runOnce seeds the log, appends the user entry and either prints the prompt
// or runs the pipeline and prints what it wrote.
func runOnce(ctx context.Context, out io.Writer, cfg config.ResponderConfig, opts *options, generator responder.Generator, logger *zap.Logger) error {
	if strings.TrimSpace(opts.text) == "" {
		return fmt.Errorf("--text must not be empty")
	}

	seed, err := loadHistory(opts.historyPath)
	if err != nil {
		return err
	}
	store := chatlogservice.NewObservedStore(chatlogservice.NewMemoryStore(seed...), nil)

	entry, err := store.Append(ctx, chatlog.Entry{
		Text:       opts.text,
		AuthorName: opts.name,
		CreatedAt:  chatlog.Timestamp(time.Now()),
	})
	if err != nil {
		return err
	}

	if opts.dryRun {
		lines, err := responder.NewHistoryReader(store, cfg.HistoryLimit).Read(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, ai.BuildPrompt(lines, entry.Text))
		return err
	}

	if generator == nil {
		return fmt.Errorf("no generator configured")
	}

	// Handle appends synchronously, so the listener finishes before Handle returns.
	var written []chatlog.Entry
	unsubscribe := store.Subscribe(func(e chatlog.Entry) {
		written = append(written, e)
	})
	defer unsubscribe()

	start := time.Now()
	result, err := responder.New(store, generator, cfg, logger, nil).Handle(ctx, &entry)
	if err != nil {
		return fmt.Errorf("pipeline %s: %w", result, err)
	}
	fmt.Fprintf(out, "result: %s (%s)\n", result, time.Since(start).Round(time.Millisecond))

	for _, e := range written {
		fmt.Fprintln(out, "----")
		fmt.Fprintln(out, e.Text)
	}
	return nil
}

func loadHistory(path string) ([]chatlog.Entry, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取历史文件失败: %w", err)
	}
	var entries []chatlog.Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("解析历史文件失败: %w", err)
	}
	return entries, nil
}
