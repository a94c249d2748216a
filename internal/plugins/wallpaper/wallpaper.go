// Package wallpaper 随机二次元壁纸
package wallpaper

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"qqbot/internal/common"
	"qqbot/internal/download"
	"qqbot/internal/onebot"
	"qqbot/internal/plugin"
)

func init() {
	plugin.Register(New())
}

const (
	maxCount = 5
	// 同时下载的图片数
	fetchConcurrency = 3
)

// Config plugins.wallpaper
type Config struct {
	// API 带一个 %d 占位符表示数量
	API string `yaml:"api"`
	// Path 图片地址在返回 JSON 中的 gjson 路径
	Path string `yaml:"path"`
}

// Wallpaper 壁纸插件
type Wallpaper struct {
	plugin.Base
	env *plugin.Env
	cfg Config
}

// New 创建插件
func New() *Wallpaper {
	return &Wallpaper{
		Base: plugin.Base{
			PluginName: "wallpaper",
			Desc:       "随机二次元壁纸",
			Usage:      fmt.Sprintf("随机壁纸 [数量≤%d]\n来点二次元", maxCount),
			Order:      20,
		},
		cfg: Config{
			API:  "https://api.lolicon.app/setu/v2?r18=0&size=regular&num=%d",
			Path: "data.#.urls.regular",
		},
	}
}

// Init 读取配置
func (w *Wallpaper) Init(env *plugin.Env) error {
	w.env = env
	return env.Config.PluginConfig(w.Name(), &w.cfg)
}

// Limit 下载图片较慢，每人 10 秒一次
func (w *Wallpaper) Limit() (time.Duration, int) { return 10 * time.Second, 1 }

// Should 随机壁纸/来点二次元
func (w *Wallpaper) Should(e *common.QQEvent) bool {
	_, ok := plugin.MatchCommand(e.Content, "随机壁纸", "来点二次元")
	return ok
}

// Handle 一张直接发送，多张以合并转发发送
func (w *Wallpaper) Handle(ctx context.Context, e *common.QQEvent) error {
	n := 1
	if args, _ := plugin.MatchCommand(e.Content, "随机壁纸", "来点二次元"); args != "" {
		v, err := strconv.Atoi(args)
		if err != nil || v < 1 {
			return common.SendText(ctx, e, w.Help())
		}
		n = min(v, maxCount)
	}
	res, err := download.GetJSON(ctx, fmt.Sprintf(w.cfg.API, n), nil)
	if err != nil {
		common.SendReply(e, "壁纸接口开小差了，稍后再试吧")
		return err
	}
	var urls []string
	for _, u := range res.Get(w.cfg.Path).Array() {
		if s := strings.TrimSpace(u.String()); s != "" {
			urls = append(urls, s)
		}
	}
	if len(urls) > n {
		urls = urls[:n]
	}
	images := w.fetch(ctx, urls)
	if len(images) == 0 {
		return common.SendText(ctx, e, "没有获取到壁纸，稍后再试吧")
	}
	if len(images) == 1 {
		return common.SendImage(ctx, e, images[0])
	}
	name, uin := w.env.Config.BotName(), w.env.Config.SelfID()
	fm := make(onebot.ForwardMessage, 0, len(images))
	for _, img := range images {
		fm = append(fm, onebot.NewNode(name, uin, onebot.ImageBytes(img)))
	}
	return common.SendForward(ctx, e, fm)
}

// fetch 并发下载，保持原有顺序，失败的跳过
func (w *Wallpaper) fetch(ctx context.Context, urls []string) [][]byte {
	results := make([][]byte, len(urls))
	var g errgroup.Group
	g.SetLimit(fetchConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			data, err := download.Image(ctx, w.env.Disk, u)
			if err != nil {
				log.Warnf("[壁纸] 下载 %s 失败: %v", u, err)
				return nil
			}
			results[i] = data
			return nil
		})
	}
	_ = g.Wait()
	out := results[:0]
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
