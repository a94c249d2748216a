// Package bilibili 解析消息中的 BV 号并回复视频信息
package bilibili

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"qqbot/internal/cache"
	"qqbot/internal/common"
	"qqbot/internal/download"
	"qqbot/internal/onebot"
	"qqbot/internal/plugin"
)

func init() {
	plugin.Register(New())
}

var bvRegex = regexp.MustCompile(`BV[0-9A-Za-z]{10}`)

const maxDescLength = 80

// Config plugins.bilibili
type Config struct {
	API string `yaml:"api"`
}

// Video 视频信息
type Video struct {
	BVID     string
	Title    string
	Owner    string
	Cover    string
	Desc     string
	Pubdate  time.Time
	Duration time.Duration
	View     int64
	Danmaku  int64
	Like     int64
	Coin     int64
	Favorite int64
}

// Bilibili 视频解析插件
type Bilibili struct {
	plugin.Base
	cfg   Config
	cache *cache.TTL[string, Video]
}

// New 创建插件
func New() *Bilibili {
	return &Bilibili{
		Base: plugin.Base{
			PluginName: "bilibili",
			Desc:       "B站视频解析：消息里带 BV 号时自动回复视频信息",
			Order:      30,
		},
		cfg: Config{API: "https://api.bilibili.com/x/web-interface/view"},
	}
}

// Init 读取配置并创建缓存
func (b *Bilibili) Init(env *plugin.Env) error {
	if err := env.Config.PluginConfig(b.Name(), &b.cfg); err != nil {
		return err
	}
	b.cache = cache.NewTTL[string, Video](env.Config.Cache.Size, env.Config.CacheTTL())
	return nil
}

// Limit 同一个人刷屏时不重复解析
func (b *Bilibili) Limit() (time.Duration, int) { return 3 * time.Second, 2 }

// Should 消息中含有 BV 号
func (b *Bilibili) Should(e *common.QQEvent) bool {
	return b.cache != nil && bvRegex.MatchString(e.RawContent+e.Content)
}

// Handle 回复封面与视频信息
func (b *Bilibili) Handle(ctx context.Context, e *common.QQEvent) error {
	bvid := bvRegex.FindString(e.RawContent + e.Content)
	v, err := b.cache.GetOrLoad(ctx, bvid, func(ctx context.Context) (Video, error) {
		return b.fetch(ctx, bvid)
	})
	if err != nil {
		return err
	}
	m := onebot.Message{}
	if v.Cover != "" {
		m = append(m, onebot.Image(v.Cover))
	}
	m = append(m, onebot.Text(v.String()))
	return common.SendMessage(ctx, e, m)
}

func (b *Bilibili) fetch(ctx context.Context, bvid string) (Video, error) {
	res, err := download.GetJSON(ctx, b.cfg.API+"?bvid="+bvid, download.Header{"Referer": "https://www.bilibili.com/"})
	if err != nil {
		return Video{}, err
	}
	if code := res.Get("code").Int(); code != 0 {
		return Video{}, errors.Errorf("bilibili 接口返回 %d: %s", code, res.Get("message").String())
	}
	return ParseVideo(res.Get("data")), nil
}

// ParseVideo 解析 view 接口的 data 字段
func ParseVideo(data gjson.Result) Video {
	return Video{
		BVID:     data.Get("bvid").String(),
		Title:    data.Get("title").String(),
		Owner:    data.Get("owner.name").String(),
		Cover:    data.Get("pic").String(),
		Desc:     strings.TrimSpace(data.Get("desc").String()),
		Pubdate:  time.Unix(data.Get("pubdate").Int(), 0),
		Duration: time.Duration(data.Get("duration").Int()) * time.Second,
		View:     data.Get("stat.view").Int(),
		Danmaku:  data.Get("stat.danmaku").Int(),
		Like:     data.Get("stat.like").Int(),
		Coin:     data.Get("stat.coin").Int(),
		Favorite: data.Get("stat.favorite").Int(),
	}
}

// String 文字信息
func (v Video) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\nUP主：%s\n", v.Title, v.Owner)
	fmt.Fprintf(&sb, "时长：%s  发布于 %s\n", formatDuration(v.Duration), v.Pubdate.Format("2006-01-02 15:04"))
	fmt.Fprintf(&sb, "播放 %s  弹幕 %s  点赞 %s  投币 %s  收藏 %s",
		count(v.View), count(v.Danmaku), count(v.Like), count(v.Coin), count(v.Favorite))
	if v.Desc != "" && v.Desc != "-" {
		desc := []rune(v.Desc)
		if len(desc) > maxDescLength {
			desc = append(desc[:maxDescLength], []rune("...")...)
		}
		sb.WriteString("\n简介：" + string(desc))
	}
	sb.WriteString("\nhttps://www.bilibili.com/video/" + v.BVID)
	return sb.String()
}

// count 过万时以“万”为单位
func count(n int64) string {
	if n >= 10000 {
		return humanize.FtoaWithDigits(math.Round(float64(n)/1000)/10, 1) + "万"
	}
	return humanize.Comma(n)
}

func formatDuration(d time.Duration) string {
	s := int(d.Seconds())
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s%3600/60, s%60)
	}
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
