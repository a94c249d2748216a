package onebot

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

var (
	// ErrNotConnected 当前没有可用的 OneBot 连接
	ErrNotConnected = errors.New("onebot: not connected")
	// ErrTimeout API 调用等待响应超时
	ErrTimeout = errors.New("onebot: api call timeout")
	// ErrAPIFailed API 返回 status 不为 ok/async
	ErrAPIFailed = errors.New("onebot: api call failed")
)

// Caller 能够调用 OneBot API 的对象
type Caller interface {
	CallAPI(ctx context.Context, action string, params any) (gjson.Result, error)
}

type apiFrame struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo"`
}

// Conn 一条 OneBot websocket 连接，API 调用通过 echo 与响应配对
type Conn struct {
	ws      *websocket.Conn
	timeout time.Duration

	writeMu sync.Mutex
	seq     atomic.Uint64

	mu      sync.Mutex
	pending map[string]chan gjson.Result
	done    chan struct{}
	closed  bool
}

// NewConn 包装 websocket 连接，timeout 为单次 API 调用的默认超时
func NewConn(ws *websocket.Conn, timeout time.Duration) *Conn {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Conn{
		ws:      ws,
		timeout: timeout,
		pending: make(map[string]chan gjson.Result),
		done:    make(chan struct{}),
	}
}

// CallAPI 发送 API 请求并等待同 echo 的响应，返回响应中的 data
func (c *Conn) CallAPI(ctx context.Context, action string, params any) (gjson.Result, error) {
	echo := action + ":" + strconv.FormatUint(c.seq.Add(1), 10)
	ch := make(chan gjson.Result, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return gjson.Result{}, ErrNotConnected
	}
	c.pending[echo] = ch
	c.mu.Unlock()
	defer c.forget(echo)

	frame, err := sonic.Marshal(apiFrame{Action: action, Params: params, Echo: echo})
	if err != nil {
		return gjson.Result{}, errors.Wrapf(err, "encode %s", action)
	}
	c.writeMu.Lock()
	err = c.ws.WriteMessage(websocket.TextMessage, frame)
	c.writeMu.Unlock()
	if err != nil {
		return gjson.Result{}, errors.Wrapf(err, "write %s", action)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return checkResponse(action, resp)
	case <-ctx.Done():
		return gjson.Result{}, errors.Wrap(ctx.Err(), action)
	case <-timer.C:
		return gjson.Result{}, errors.Wrap(ErrTimeout, action)
	case <-c.done:
		return gjson.Result{}, errors.Wrap(ErrNotConnected, action)
	}
}

func checkResponse(action string, resp gjson.Result) (gjson.Result, error) {
	switch resp.Get("status").String() {
	case "ok", "async":
		return resp.Get("data"), nil
	}
	msg := resp.Get("wording").String()
	if msg == "" {
		msg = resp.Get("message").String()
	}
	if msg == "" {
		msg = resp.Get("msg").String()
	}
	return resp.Get("data"), errors.Wrapf(ErrAPIFailed, "%s retcode=%d %s", action, resp.Get("retcode").Int(), msg)
}

func (c *Conn) forget(echo string) {
	c.mu.Lock()
	delete(c.pending, echo)
	c.mu.Unlock()
}

func (c *Conn) deliver(echo string, resp gjson.Result) {
	c.mu.Lock()
	ch, ok := c.pending[echo]
	delete(c.pending, echo)
	c.mu.Unlock()
	if ok {
		ch <- resp
	}
}

// Serve 读循环：带 echo 的帧交给等待中的调用，其余帧交给 onEvent。连接断开时返回
func (c *Conn) Serve(onEvent func([]byte)) error {
	defer c.shutdown()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		if !gjson.ValidBytes(data) {
			continue
		}
		if echo := gjson.GetBytes(data, "echo"); echo.Exists() && echo.String() != "" {
			c.deliver(echo.String(), gjson.ParseBytes(data))
			continue
		}
		if onEvent != nil {
			onEvent(data)
		}
	}
}

func (c *Conn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// Close 关闭底层连接，Serve 随之返回
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// Done 连接断开后关闭
func (c *Conn) Done() <-chan struct{} {
	return c.done
}
