// Package chat 接入 DeepSeek 的 AI 对话：私聊带历史，群聊带上下文
package chat

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"qqbot/internal/common"
	"qqbot/internal/download"
	"qqbot/internal/onebot"
	"qqbot/internal/plugin"
	"qqbot/internal/storage"
)

func init() {
	plugin.Register(New())
}

// Config plugins.chat
type Config struct {
	BaseURL     string     `yaml:"base-url"`
	Model       string     `yaml:"model"`
	Temperature float64    `yaml:"temperature"`
	APIKey      string     `yaml:"api-key"`
	OwnerName   string     `yaml:"owner-name"`
	Persona     string     `yaml:"persona"`
	Relations   []Relation `yaml:"relations"`
}

// Chat AI 对话插件
type Chat struct {
	plugin.Base
	env *plugin.Env
	cfg Config
}

// New 创建插件
func New() *Chat {
	return &Chat{Base: plugin.Base{
		PluginName: "chat",
		Desc:       "AI 对话：私聊、@我或喊我的名字",
		Usage:      "私聊直接说话，群里@我或者消息里带上我的名字即可。\n清空记忆：私聊发送「清空记忆」",
		Order:      100,
	}}
}

// Init 读取配置，环境变量 DEEPSEEK_API_KEY 优先
func (c *Chat) Init(env *plugin.Env) error {
	c.env = env
	c.cfg = Config{
		BaseURL:     "https://api.deepseek.com/chat/completions",
		Model:       "deepseek-chat",
		Temperature: 0.7,
		OwnerName:   "主人",
	}
	if err := env.Config.PluginConfig(c.Name(), &c.cfg); err != nil {
		return err
	}
	if key := os.Getenv("DEEPSEEK_API_KEY"); key != "" {
		c.cfg.APIKey = key
	}
	if c.cfg.APIKey == "" {
		log.Warn("[AI] 未配置 api-key，AI 对话将不可用")
	}
	return nil
}

func (c *Chat) selfID() int64 {
	return c.env.Config.SelfID()
}

func (c *Chat) botName() string {
	return c.env.Config.BotName()
}

func (c *Chat) calledMe(e *common.QQEvent) bool {
	ev := e.Event
	if ev == nil {
		ev = &onebot.MessageEvent{MessageType: e.MsgType, Message: onebot.Message{onebot.Text(e.Content)}}
	}
	names := append([]string{c.botName()}, c.env.Config.Account.Nicknames...)
	return ev.IsToMe(c.selfID(), names)
}

func (c *Chat) atMaster(e *common.QQEvent) bool {
	if !e.IsGroup() || e.Event == nil {
		return false
	}
	for _, m := range c.env.Config.Account.Masters {
		if e.Event.Mentions(m) {
			return true
		}
	}
	return false
}

// Should 私聊、被艾特、被喊名字，或群聊中有人@主人
func (c *Chat) Should(e *common.QQEvent) bool {
	if c.env == nil {
		return false
	}
	return e.IsPrivate() || c.calledMe(e) || c.atMaster(e)
}

// Handle 按场景调用 AI 并回复
func (c *Chat) Handle(ctx context.Context, e *common.QQEvent) error {
	var (
		answer string
		err    error
	)
	switch {
	case e.IsPrivate() && strings.TrimSpace(e.Content) == "清空记忆":
		if err := c.env.Store.ClearConversation(ctx, e.UserID); err != nil {
			return err
		}
		return common.SendText(ctx, e, "好的，之前聊过的内容我都忘掉啦")
	case e.IsGroup() && !c.calledMe(e):
		// @主人
		log.Infof("[@主人] <- 群:%d 用户:%d 内容:%s", e.GroupID, e.UserID, e.Content)
		content := e.Content
		if content == "" {
			content = atMasterEmpty
		}
		answer, err = c.groupChat(ctx, e.GroupID, e.UserID, content, fmt.Sprintf(atMasterHint, c.cfg.OwnerName))
	case strings.TrimSpace(strings.ReplaceAll(e.Content, c.botName(), "")) == "":
		return common.SendText(ctx, e, emptyMessageReply)
	case e.IsPrivate():
		answer, err = c.privateChat(ctx, e.UserID, e.Content, c.roleHint(e.UserID))
	default:
		answer, err = c.groupChat(ctx, e.GroupID, e.UserID, e.Content, c.roleHint(e.UserID))
	}
	if err != nil {
		common.SendReply(e, errorMessage)
		return errors.Wrap(err, "AI 出错")
	}
	return c.reply(ctx, e, answer)
}

// reply 超过单条消息长度的回答绘制成一张图片，绘制失败时分段发送
func (c *Chat) reply(ctx context.Context, e *common.QQEvent, answer string) error {
	if c.env.Render != nil && utf8.RuneCountInString(answer) > common.MaxTextLength && c.env.Render.Supports(answer) {
		img, err := c.env.Render.TextImage(answer)
		if err == nil {
			return common.SendImage(ctx, e, img)
		}
		log.Warnf("[AI] 绘制长回答失败: %v", err)
	}
	return common.SendText(ctx, e, answer)
}

// privateChat 带私聊对话历史调用
func (c *Chat) privateChat(ctx context.Context, userID int64, content, hint string) (string, error) {
	history, err := c.env.Store.Conversation(ctx, userID)
	if err != nil {
		return "", err
	}
	messages := []message{{Role: "system", Content: c.buildSystemMessage(false, hint)}}
	for _, m := range history {
		messages = append(messages, message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, message{Role: "user", Content: content})

	answer, err := c.complete(ctx, "私聊AI", messages)
	if err != nil {
		return "", err
	}
	if err := c.env.Store.AppendConversation(ctx, userID, "user", content); err != nil {
		log.Warnf("[AI] %v", err)
	}
	if err := c.env.Store.AppendConversation(ctx, userID, "assistant", answer); err != nil {
		log.Warnf("[AI] %v", err)
	}
	return answer, nil
}

// groupChat 使用群聊上下文调用。上下文中除最后一条外的消息合并为一条，最后一条作为当前消息
func (c *Chat) groupChat(ctx context.Context, groupID, userID int64, content, hint string) (string, error) {
	history, err := c.env.Store.GroupContext(ctx, groupID)
	if err != nil {
		return "", err
	}
	// 当前消息通常已经由 server 记录，没有记录时（例如过长）补上
	if n := len(history); n == 0 || history[n-1].UserID != userID || history[n-1].Content != content {
		history = append(history, storage.GroupContextMessage{UserID: userID, Content: content})
	}
	messages := []message{{Role: "system", Content: c.buildSystemMessage(true, hint)}}
	if len(history) > 1 {
		var sb strings.Builder
		sb.WriteString("群聊消息：\n")
		for _, m := range history[:len(history)-1] {
			fmt.Fprintf(&sb, "【%s】%s 发言说: %s\n", c.roleTag(m.UserID), c.env.Store.Nickname(ctx, groupID, m.UserID), m.Content)
		}
		messages = append(messages, message{Role: "user", Content: sb.String()})
	}
	last := history[len(history)-1]
	messages = append(messages, message{
		Role:    "user",
		Content: fmt.Sprintf("[%s]: %s", c.env.Store.Nickname(ctx, groupID, last.UserID), last.Content),
	})

	answer, err := c.complete(ctx, "群聊AI", messages)
	if err != nil {
		return "", err
	}
	if err := c.env.Store.AddGroupContext(ctx, groupID, c.selfID(), answer); err != nil {
		log.Warnf("[AI] %v", err)
	}
	return answer, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

// complete 调用 chat completions 接口
func (c *Chat) complete(ctx context.Context, chatType string, messages []message) (string, error) {
	if c.cfg.APIKey == "" {
		return "", errors.New("未配置 api-key")
	}
	if log.IsLevelEnabled(log.DebugLevel) {
		data, _ := sonic.ConfigStd.MarshalIndent(messages, "", "  ")
		log.Debugf("[%s] 发送给AI的完整消息:\n%s", chatType, data)
	}
	res, err := download.PostJSON(ctx, c.cfg.BaseURL,
		download.Header{"Authorization": "Bearer " + c.cfg.APIKey},
		completionRequest{Model: c.cfg.Model, Messages: messages, Temperature: c.cfg.Temperature})
	if err != nil {
		return "", err
	}
	if msg := res.Get("error.message"); msg.Exists() {
		return "", errors.Errorf("API 错误: %s", msg.String())
	}
	answer := strings.TrimSpace(res.Get("choices.0.message.content").String())
	if answer == "" {
		return noAnswer, nil
	}
	return answer, nil
}
