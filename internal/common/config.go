package common

import (
	_ "embed" // embed the default config file
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// 配置常量
const (
	RepeatMessageQueueSize = 3    // 连续相同消息检测队列大小
	MaxTextLength          = 1500 // 单条纯文本消息最大字符数，超出后分段发送
)

//go:embed default_config.yml
var defaultConfig []byte

// DefaultConfig 默认配置文件内容
func DefaultConfig() []byte {
	return append([]byte(nil), defaultConfig...)
}

// Config 总配置
type Config struct {
	Account struct {
		SelfID    int64    `yaml:"self-id"`
		BotName   string   `yaml:"bot-name"`
		Masters   []int64  `yaml:"masters"`
		Nicknames []string `yaml:"nicknames"`
	} `yaml:"account"`

	Server struct {
		Mode              string `yaml:"mode"`
		Listen            string `yaml:"listen"`
		URL               string `yaml:"url"`
		AccessToken       string `yaml:"access-token"`
		ReconnectInterval int    `yaml:"reconnect-interval"`
		APITimeout        int    `yaml:"api-timeout"`
		HandleTimeout     int    `yaml:"handle-timeout"`
	} `yaml:"server"`

	Output struct {
		LogLevel string `yaml:"log-level"`
		LogDir   string `yaml:"log-dir"`
		LogAging int    `yaml:"log-aging"`
		Color    bool   `yaml:"color"`
	} `yaml:"output"`

	Database struct {
		SQLite string `yaml:"sqlite"`
		Cache  string `yaml:"cache"`
	} `yaml:"database"`

	Limit struct {
		Interval float64 `yaml:"interval"`
		Burst    int     `yaml:"burst"`
	} `yaml:"limit"`

	Cache struct {
		Size int `yaml:"size"`
		TTL  int `yaml:"ttl"`
		// 图片磁盘缓存
		DiskEntries int `yaml:"disk-entries"`
		DiskDays    int `yaml:"disk-days"`
	} `yaml:"cache"`

	Render struct {
		Font string `yaml:"font"`
	} `yaml:"render"`

	Plugins map[string]yaml.Node `yaml:"plugins"`

	selfMu sync.RWMutex
}

// Parse 在默认配置之上解析 data，并应用环境变量
func Parse(data []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(defaultConfig, c); err != nil {
		return nil, errors.Wrap(err, "默认配置不合法")
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "配置文件不合法")
	}
	if len(doc.Content) > 0 {
		root := doc.Content[0]
		if root.Kind != yaml.MappingNode && root.Tag != "!!null" {
			return nil, errors.Errorf("配置文件不合法: 第 %d 行，顶层应为键值映射", root.Line)
		}
		if err := root.Decode(c); err != nil {
			return nil, errors.Wrap(err, "配置文件不合法")
		}
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load 读取配置文件。文件不存在时写出默认配置并返回 os.ErrNotExist
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := WriteDefault(path); err != nil {
			return nil, err
		}
		log.Warnf("未找到配置文件，已生成默认配置 %s，请修改后重新启动", path)
		return nil, os.ErrNotExist
	}
	if err != nil {
		return nil, errors.Wrap(err, "读取配置文件失败")
	}
	return Parse(data)
}

// WriteDefault 写出默认配置
func WriteDefault(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "创建配置目录失败")
		}
	}
	return errors.Wrap(os.WriteFile(path, defaultConfig, 0o644), "写入默认配置失败")
}

// applyEnv 环境变量覆盖：BOT_QQ、MASTER_QQ、QQBOT_LISTEN
func (c *Config) applyEnv() {
	if v := os.Getenv("BOT_QQ"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Account.SelfID = id
		}
	}
	if v := os.Getenv("MASTER_QQ"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && !c.IsMaster(id) {
			c.Account.Masters = append(c.Account.Masters, id)
		}
	}
	if v := os.Getenv("QQBOT_LISTEN"); v != "" {
		c.Server.Listen = v
	}
}

// Validate 检查配置取值
func (c *Config) Validate() error {
	switch c.Server.Mode {
	case "reverse", "forward":
	default:
		return errors.Errorf("未知的连接方式 %q", c.Server.Mode)
	}
	if c.Server.APITimeout <= 0 {
		return errors.New("api-timeout 必须大于 0")
	}
	if c.Server.Mode == "forward" && c.Server.URL == "" {
		return errors.New("正向连接需要配置 url")
	}
	return nil
}

// IsMaster 是否主人
func (c *Config) IsMaster(userID int64) bool {
	for _, m := range c.Account.Masters {
		if m == userID && userID != 0 {
			return true
		}
	}
	return false
}

// SelfID 机器人QQ号
func (c *Config) SelfID() int64 {
	c.selfMu.RLock()
	defer c.selfMu.RUnlock()
	return c.Account.SelfID
}

// SetSelfID 连接建立后由 get_login_info 填充
func (c *Config) SetSelfID(id int64) {
	c.selfMu.Lock()
	defer c.selfMu.Unlock()
	c.Account.SelfID = id
}

// BotName 机器人自称
func (c *Config) BotName() string {
	if c.Account.BotName == "" {
		return "小牛"
	}
	return c.Account.BotName
}

// PluginConfig 将 plugins.<name> 解码到 out，未配置时保持 out 不变
func (c *Config) PluginConfig(name string, out any) error {
	node, ok := c.Plugins[name]
	if !ok {
		return nil
	}
	return errors.Wrapf(node.Decode(out), "插件 %s 配置不合法", name)
}

// APITimeout 单次 API 调用超时
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.Server.APITimeout) * time.Second
}

// HandleTimeout 单个插件处理超时
func (c *Config) HandleTimeout() time.Duration {
	if c.Server.HandleTimeout <= 0 {
		return 90 * time.Second
	}
	return time.Duration(c.Server.HandleTimeout) * time.Second
}

// LimitEvery 限流令牌补充间隔
func (c *Config) LimitEvery() time.Duration {
	return time.Duration(c.Limit.Interval * float64(time.Second))
}

// CacheTTL 内存缓存有效期
func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTL <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Cache.TTL) * time.Second
}

// DiskMaxAge 图片磁盘缓存的保存时长，0 表示不过期
func (c *Config) DiskMaxAge() time.Duration {
	if c.Cache.DiskDays <= 0 {
		return 0
	}
	return time.Duration(c.Cache.DiskDays) * 24 * time.Hour
}
