package onebot

import (
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// MaxForwardNodes 单条合并转发消息最多容纳的节点数
const MaxForwardNodes = 100

// Node 合并转发中的一个自定义节点
type Node struct {
	Name    string
	Uin     int64
	Content Message
}

// ForwardMessage 合并转发消息
type ForwardMessage []Node

type nodeJSON struct {
	Type string       `json:"type"`
	Data nodeDataJSON `json:"data"`
}

type nodeDataJSON struct {
	Name    string  `json:"name"`
	Uin     string  `json:"uin"`
	Content Message `json:"content"`
}

// NewNode 创建节点
func NewNode(name string, uin int64, content ...Element) Node {
	return Node{Name: name, Uin: uin, Content: content}
}

// TextNode 创建纯文本节点
func TextNode(name string, uin int64, text string) Node {
	return NewNode(name, uin, Text(text))
}

// MarshalJSON 输出 {"type":"node","data":{"name","uin","content"}}
func (n Node) MarshalJSON() ([]byte, error) {
	content := n.Content
	if content == nil {
		content = Message{}
	}
	return sonic.Marshal(nodeJSON{
		Type: "node",
		Data: nodeDataJSON{
			Name:    n.Name,
			Uin:     strconv.FormatInt(n.Uin, 10),
			Content: content,
		},
	})
}

// Chunk 按每块最多 n 个节点切分，n <= 0 时使用 MaxForwardNodes
func (f ForwardMessage) Chunk(n int) []ForwardMessage {
	if n <= 0 {
		n = MaxForwardNodes
	}
	var chunks []ForwardMessage
	for len(f) > n {
		chunks = append(chunks, f[:n:n])
		f = f[n:]
	}
	if len(f) > 0 {
		chunks = append(chunks, f)
	}
	return chunks
}

// PlainText 合并转发降级为纯文本时使用的内容
func (f ForwardMessage) PlainText() string {
	parts := make([]string, 0, len(f))
	for _, n := range f {
		s := strings.TrimSpace(n.Content.Summary())
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n——————\n")
}
