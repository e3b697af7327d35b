package cmd

import (
	"os/signal"
	"syscall"

	"reconciliation-task-service/cmd/reconserver/config"
	"reconciliation-task-service/internal/server"
	"reconciliation-task-service/internal/task"
	"reconciliation-task-service/internal/upload"
	"reconciliation-task-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconciliation task service",
	Long: `Serve starts the MCP-over-SSE endpoint and the task worker pool.

The service listens on /sse (event stream), /messages (client requests) and
/health. Tasks run asynchronously; results are written under the results
directory and kept available after restarts.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.String("host", "0.0.0.0", "listen host")
	flags.Int("port", 3335, "listen port")
	flags.Int("max-concurrent-tasks", 5, "worker pool size")
	flags.Int("task-timeout", 3600, "per-task time budget in seconds")
	flags.Int64("upload-max-bytes", 100*1024*1024, "maximum decoded upload size")
	flags.String("allowed-extensions", ".csv,.xlsx,.xls", "comma-separated upload extension whitelist")
	flags.String("upload-dir", "./uploads", "upload storage directory")
	flags.String("results-dir", "./results", "result artifact directory")
	flags.Bool("date-partition-uploads", false, "store uploads under YYYY/MM/DD directories")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")

	viper.BindPFlag("listen_host", flags.Lookup("host"))
	viper.BindPFlag("listen_port", flags.Lookup("port"))
	viper.BindPFlag("max_concurrent_tasks", flags.Lookup("max-concurrent-tasks"))
	viper.BindPFlag("task_timeout_seconds", flags.Lookup("task-timeout"))
	viper.BindPFlag("upload_max_bytes", flags.Lookup("upload-max-bytes"))
	viper.BindPFlag("allowed_extensions", flags.Lookup("allowed-extensions"))
	viper.BindPFlag("upload_dir", flags.Lookup("upload-dir"))
	viper.BindPFlag("results_dir", flags.Lookup("results-dir"))
	viper.BindPFlag("date_partition_uploads", flags.Lookup("date-partition-uploads"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("log_format", flags.Lookup("log-format"))

	config.SetDefaults(viper.GetViper())
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(logger.ServiceConfig(cfg.LogLevel, cfg.LogFormat))
	if err != nil {
		return err
	}
	logger.SetGlobalLogger(log)

	manager := task.NewManager(task.Config{
		MaxConcurrentTasks: cfg.MaxConcurrentTasks,
		TaskTimeout:        cfg.TaskTimeout(),
		ResultsDir:         cfg.ResultsDir,
	}, log)

	store := upload.NewStore(upload.Config{
		Dir:               cfg.UploadDir,
		MaxBytes:          cfg.UploadMaxBytes,
		AllowedExtensions: cfg.Extensions(),
		DatePartition:     cfg.DatePartitionUploads,
	})

	srv := server.New(server.Config{
		Host:    cfg.ListenHost,
		Port:    cfg.ListenPort,
		Version: version,
	}, manager, store)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithFields(logger.Fields{
		"host":    cfg.ListenHost,
		"port":    cfg.ListenPort,
		"workers": cfg.MaxConcurrentTasks,
	}).Info("Starting reconciliation task service")
	return srv.Start(ctx)
}
