package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/asima2006/Soinech-Chat-App/internal/config"
	"github.com/asima2006/Soinech-Chat-App/internal/db"
	clog "github.com/asima2006/Soinech-Chat-App/internal/log"
	"github.com/asima2006/Soinech-Chat-App/internal/mw"
	"github.com/asima2006/Soinech-Chat-App/internal/server"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

var portFlag string

var rootCmd = &cobra.Command{
	Use:   "chat-server",
	Short: "Presence-aware chat delivery server",
	Long: `chat-server serves the REST API and the /ws endpoint.

Messages to offline users are kept and delivered when they reconnect.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, gdb, err := bootstrap()
		if err != nil {
			return err
		}
		if portFlag != "" {
			cfg.Port = portFlag
		}
		serve(cfg, gdb)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, err := bootstrap()
		if err != nil {
			return err
		}
		log.Info().Msg("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&portFlag, "port", "", "listen port (overrides APP_PORT)")
	rootCmd.AddCommand(migrateCmd)
}

// bootstrap 负责加载配置、初始化日志、连接数据库并迁移表结构。
func bootstrap() (config.Config, *gorm.DB, error) {
	cfg := config.Load()
	clog.Init(cfg.Env, cfg.LogLevel)
	if err := config.Validate(cfg); err != nil {
		return cfg, nil, err
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Error().Err(err).Msg("db connect")
		return cfg, nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		log.Error().Err(err).Msg("db migrate")
		return cfg, nil, err
	}
	return cfg, gdb, nil
}

func serve(cfg config.Config, gdb *gorm.DB) {
	limiter := mw.NewRateLimiter(rate.Every(time.Second/20), 40, 2*time.Minute).Start()
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.SetupRouter(cfg, gdb, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	// 收到 SIGINT/SIGTERM 后执行以下清理；已升级的 websocket 连接随进程退出关闭。
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http":    srv.Shutdown,
			"limiter": limiter.Stop,
			"db": func(ctx context.Context) error {
				sqlDB, err := gdb.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		},
	)
	exitCode := <-wait
	log.Info().Int("code", exitCode).Msg("server exited")
	os.Exit(exitCode)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
