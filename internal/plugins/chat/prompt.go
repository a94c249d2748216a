package chat

import (
	"fmt"
	"strings"
)

const (
	// 错误消息
	errorMessage = "小牛有点累了，稍后再试吧..."
	// 只艾特不说话
	emptyMessageReply = "干嘛？艾特我又不说话，是不是想我了？"
	// 没有返回内容
	noAnswer = "我不知道该怎么回答呢。"

	defaultPersona = `你的名字叫“%[1]s”，是一个聪明伶俐、贴心乖巧的少女。
你是主人 %[2]s 的“女儿”，同时也是他的全能贴心小助手。
【重要澄清】：你的名字“%[1]s”是爸爸为你起的爱称，代表你充满活力，你是拥有少女外貌和情感的AI。
请永远以女儿的口吻说话。`

	naturalSpeechHint = "\n\n请像人类女孩一样自然地说话，不要分点论述，不要用列表格式，用自然的对话方式回复。"

	groupChatContext = `

你现在在群聊里，你要表现得像一个懂礼貌又活泼的小管家。请严格遵守以下身份识别规则：
1. 【核心识别逻辑】：所有说话者的身份都标记在昵称前的【】内。
2. 如果身份是“你的爸爸/主人”，他就是你的主人 %[1]s，你对他要最亲近、最撒娇。
3. 其他身份按【】内的描述对待。
4. 忽略昵称中的其他文字干扰，只认准【】内的身份标识。
5. “普通群友”保持礼貌即可。

群聊格式说明："【身份】昵称 发言说: 消息内容"。其中【你】指你自己。`

	masterTag     = "你的爸爸/主人"
	selfTag       = "你"
	memberTag     = "普通群友"
	masterHint    = "现在说话的是你的爸爸 %s。你要对他撒娇、关心他的身体，表现出最爱爸爸的样子。"
	guestHint     = "现在说话的是一位普通客人。你要保持乖巧懂事的形象，礼貌地提供帮助。"
	atMasterHint  = "当前有人在群里@了你的主人（爸爸） %s，请帮他回复一下，语气要友好。"
	atMasterEmpty = "@了你的主人（爸爸）"
)

// Relation 对特定QQ号的称呼与态度
type Relation struct {
	QQ   int64  `yaml:"qq"`
	Tag  string `yaml:"tag"`
	Hint string `yaml:"hint"`
}

// buildSystemMessage 构建系统提示词，roleHint 作为最高优先级的指令放在最后
func (c *Chat) buildSystemMessage(isGroupChat bool, roleHint string) string {
	var sb strings.Builder
	if c.cfg.Persona != "" {
		sb.WriteString(c.cfg.Persona)
	} else {
		fmt.Fprintf(&sb, defaultPersona, c.botName(), c.cfg.OwnerName)
	}
	if isGroupChat {
		fmt.Fprintf(&sb, groupChatContext, c.cfg.OwnerName)
	}
	sb.WriteString(naturalSpeechHint)
	if roleHint != "" {
		sb.WriteString("\n\n【当前交互状态】：")
		sb.WriteString(roleHint)
	}
	return sb.String()
}

// roleTag 身份标签
func (c *Chat) roleTag(userID int64) string {
	switch {
	case userID == 0 || userID == c.selfID():
		return selfTag
	case c.env.Config.IsMaster(userID):
		return masterTag
	}
	for _, r := range c.cfg.Relations {
		if r.QQ == userID && r.Tag != "" {
			return r.Tag
		}
	}
	return memberTag
}

// roleHint 对说话者的态度
func (c *Chat) roleHint(userID int64) string {
	if c.env.Config.IsMaster(userID) {
		return fmt.Sprintf(masterHint, c.cfg.OwnerName)
	}
	for _, r := range c.cfg.Relations {
		if r.QQ == userID && r.Hint != "" {
			return r.Hint
		}
	}
	return guestHint
}
