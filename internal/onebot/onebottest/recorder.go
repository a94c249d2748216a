// Package onebottest 提供测试用的 OneBot API 记录器
package onebottest

import (
	"context"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"
)

// Call 一次被记录的 API 调用
type Call struct {
	Action string
	Params gjson.Result
}

// Recorder 实现 onebot.Caller，记录所有调用并返回预设的 data
type Recorder struct {
	mu        sync.Mutex
	calls     []Call
	fail      map[string]error
	responses map[string]string
}

// New 创建记录器
func New() *Recorder {
	return &Recorder{
		fail:      make(map[string]error),
		responses: make(map[string]string),
	}
}

// Fail 让指定 action 返回错误
func (r *Recorder) Fail(action string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[action] = err
}

// Respond 设置指定 action 的 data JSON
func (r *Recorder) Respond(action, data string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[action] = data
}

// CallAPI 记录调用
func (r *Recorder) CallAPI(_ context.Context, action string, params any) (gjson.Result, error) {
	raw, err := sonic.Marshal(params)
	if err != nil {
		return gjson.Result{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Action: action, Params: gjson.ParseBytes(raw)})
	if err := r.fail[action]; err != nil {
		return gjson.Result{}, err
	}
	data := r.responses[action]
	if data == "" {
		data = `{"message_id":1}`
	}
	return gjson.Parse(data), nil
}

// Calls 所有调用的副本
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Actions 按顺序返回调用过的 action
func (r *Recorder) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	actions := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		actions = append(actions, c.Action)
	}
	return actions
}

// Texts 所有 send_msg 调用中消息的纯文本
func (r *Recorder) Texts() []string {
	var texts []string
	for _, c := range r.Calls() {
		if c.Action != "send_msg" {
			continue
		}
		var s string
		c.Params.Get("message").ForEach(func(_, seg gjson.Result) bool {
			if seg.Get("type").String() == "text" {
				s += seg.Get("data.text").String()
			}
			return true
		})
		texts = append(texts, s)
	}
	return texts
}

// Reset 清空记录
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
