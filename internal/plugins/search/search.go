// Package search 网页搜索，结果以合并转发发送
package search

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"qqbot/internal/cache"
	"qqbot/internal/common"
	"qqbot/internal/download"
	"qqbot/internal/onebot"
	"qqbot/internal/plugin"
)

func init() {
	plugin.Register(New())
}

const maxKeywordLength = 64

// Config plugins.search
type Config struct {
	BaseURL string `yaml:"base-url"`
	Results int    `yaml:"results"`
}

// Result 一条搜索结果
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Search 搜索插件
type Search struct {
	plugin.Base
	env   *plugin.Env
	cfg   Config
	cache *cache.TTL[string, []Result]
}

// New 创建插件
func New() *Search {
	return &Search{
		Base: plugin.Base{
			PluginName: "search",
			Desc:       "必应搜索",
			Usage:      "搜索 <关键词>",
			Order:      21,
		},
		cfg: Config{BaseURL: "https://cn.bing.com/search", Results: 5},
	}
}

// Init 读取配置并创建结果缓存
func (s *Search) Init(env *plugin.Env) error {
	s.env = env
	if err := env.Config.PluginConfig(s.Name(), &s.cfg); err != nil {
		return err
	}
	if s.cfg.Results <= 0 {
		s.cfg.Results = 5
	}
	s.cache = cache.NewTTL[string, []Result](env.Config.Cache.Size, env.Config.CacheTTL())
	return nil
}

// Limit 每人 5 秒一次
func (s *Search) Limit() (time.Duration, int) { return 5 * time.Second, 2 }

// Should 搜索 <关键词>
func (s *Search) Should(e *common.QQEvent) bool {
	_, ok := plugin.MatchCommand(e.Content, "搜索", "百度", "search")
	return ok
}

// Handle 查询（优先使用缓存）并以合并转发发送
func (s *Search) Handle(ctx context.Context, e *common.QQEvent) error {
	kw, _ := plugin.MatchCommand(e.Content, "搜索", "百度", "search")
	if kw == "" {
		return common.SendText(ctx, e, s.Help())
	}
	if utf8.RuneCountInString(kw) > maxKeywordLength {
		return common.SendText(ctx, e, "关键词太长了")
	}
	results, err := s.cache.GetOrLoad(ctx, strings.ToLower(kw), func(ctx context.Context) ([]Result, error) {
		return s.query(ctx, kw)
	})
	if err != nil {
		common.SendReply(e, "搜索失败了，稍后再试吧")
		return err
	}
	if len(results) == 0 {
		return common.SendText(ctx, e, fmt.Sprintf("没有找到和「%s」相关的结果", kw))
	}
	name, uin := s.env.Config.BotName(), s.env.Config.SelfID()
	fm := onebot.ForwardMessage{onebot.TextNode(name, uin, fmt.Sprintf("「%s」的搜索结果", kw))}
	for i, r := range results {
		text := fmt.Sprintf("%d. %s\n%s", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			text += "\n" + r.Snippet
		}
		fm = append(fm, onebot.TextNode(name, uin, text))
	}
	return common.SendForward(ctx, e, fm)
}

func (s *Search) query(ctx context.Context, kw string) ([]Result, error) {
	u := s.cfg.BaseURL + "?q=" + url.QueryEscape(kw)
	body, err := download.Get(ctx, u, download.Header{"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8"})
	if err != nil {
		return nil, err
	}
	return ParseBing(body, s.cfg.Results)
}

// ParseBing 解析必应搜索结果页，最多返回 limit 条
func ParseBing(body []byte, limit int) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "解析搜索页面失败")
	}
	var results []Result
	doc.Find("li.b_algo").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		a := sel.Find("h2 a").First()
		href, ok := a.Attr("href")
		title := strings.TrimSpace(a.Text())
		if !ok || title == "" {
			return true
		}
		snippet := strings.TrimSpace(sel.Find(".b_caption p").First().Text())
		if snippet == "" {
			snippet = strings.TrimSpace(sel.Find("p").First().Text())
		}
		results = append(results, Result{Title: title, URL: href, Snippet: snippet})
		return len(results) < limit
	})
	return results, nil
}
