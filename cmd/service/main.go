package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kasuganosora/contentmcp/pkg/config"
	"github.com/kasuganosora/contentmcp/pkg/ingest"
	"github.com/kasuganosora/contentmcp/pkg/logging"
	"github.com/kasuganosora/contentmcp/pkg/security"
	mcpserver "github.com/kasuganosora/contentmcp/server/mcp"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "contentmcp",
		Short:         "MCP tool server for bulk content generation",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCmd(), newParseCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var (
		configPath string
		transport  string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if transport != "" {
				cfg.MCP.Transport = transport
			}
			if verbose {
				cfg.Log.Level = logging.LogDebug.String()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (.json/.yaml)")
	cmd.Flags().StringVarP(&transport, "transport", "t", "", "transport: http or stdio")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg, err = config.LoadConfigOrDefault()
	} else {
		cfg, err = config.LoadConfig(path)
	}
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(cfg.LoggingOptions())
	defer func() { _ = logger.Sync() }()

	logger.Info("加载配置: Transport=%s, Address=%s, DataRoot=%s",
		cfg.MCP.Transport, cfg.GetListenAddress(), cfg.Ingest.DataRoot)

	ingestor := ingest.NewIngestor(ingest.NewOSFileReader(cfg.Ingest.DataRoot), ingest.WithLogger(logger))
	auditLogger := security.NewAuditLogger(cfg.Audit.BufferSize)
	defer reportAudit(logger, auditLogger)

	deps, err := mcpserver.NewToolDeps(ingestor, auditLogger, logger, cfg.Ingest.Timeout)
	if err != nil {
		logger.Error("初始化工具失败: %v", err)
		return err
	}

	if err := mcpserver.NewServer(cfg, deps, logger).Start(ctx); err != nil {
		logger.Error("MCP 服务器退出: %v", err)
		return err
	}
	logger.Info("服务器停止")
	return nil
}

// reportAudit 关闭时输出审计摘要，debug 级别下附带完整事件
func reportAudit(logger logging.Logger, auditLogger *security.AuditLogger) {
	for _, tool := range mcpserver.Tools() {
		if n := len(auditLogger.GetEventsByTool(tool.Name)); n > 0 {
			logger.Info("[AUDIT] %s: %d 条记录", tool.Name, n)
		}
	}

	if logger.GetLevel() < logging.LogDebug {
		return
	}
	events, err := auditLogger.Export()
	if err != nil {
		logger.Warn("[AUDIT] 导出审计日志失败: %v", err)
		return
	}
	logger.Debug("[AUDIT] 审计日志:\n%s", events)
}
