package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"qqbot/internal/cache"
	"qqbot/internal/common"
	"qqbot/internal/plugin"
	_ "qqbot/internal/plugins"
	"qqbot/internal/render"
	"qqbot/internal/server"
	"qqbot/internal/storage"
)

// 构建时通过 -ldflags "-X main.version=..." 写入
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "qqbot",
	Short:         "基于 OneBot v11 的 QQ 群插件机器人",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("qqbot", version)
	},
}

var genConfigCmd = &cobra.Command{
	Use:   "gen-config [path]",
	Short: "生成默认配置文件",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil {
			return errors.Errorf("%s 已存在", path)
		}
		if err := common.WriteDefault(path); err != nil {
			return err
		}
		fmt.Println("已生成配置文件", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "配置文件路径")
	rootCmd.AddCommand(versionCmd, genConfigCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := common.Load(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := common.InitLogger(cfg); err != nil {
		return err
	}

	store, err := storage.Open(cfg.Database.SQLite)
	if err != nil {
		return err
	}
	defer store.Close()
	store.BotName = cfg.BotName()
	store.SelfID = cfg.SelfID

	disk, err := cache.OpenDisk(cfg.Database.Cache)
	if err != nil {
		return err
	}
	defer disk.Close()
	disk.SetLimit(cfg.Cache.DiskEntries, cfg.DiskMaxAge())
	if n, err := disk.Prune(); err != nil {
		log.Warn(err)
	} else if n > 0 {
		log.Infof("已清理 %d 条过期图片缓存", n)
	}

	env := &plugin.Env{
		Config:   cfg,
		Store:    store,
		Disk:     disk,
		Render:   render.New(cfg.Render.Font),
		Switches: plugin.NewSwitches(store, cfg.CacheTTL()),
		Started:  time.Now(),
	}
	plugins := plugin.Plugins()
	if err := plugin.Init(env, plugins); err != nil {
		return err
	}
	defer plugin.Close(plugins)

	d := plugin.NewDispatcher(env, plugins)
	log.Infof("🤖 %s %s 启动中", cfg.BotName(), version)
	err = server.New(cfg, store, d).Run(ctx)
	log.Info("正在退出，等待处理中的消息...")
	d.Wait()
	return err
}
