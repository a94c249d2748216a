// Package server 负责与 OneBot 实现（NapCat 等）建立 websocket 连接并把消息交给分发器
package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"qqbot/internal/common"
	"qqbot/internal/onebot"
	"qqbot/internal/plugin"
	"qqbot/internal/storage"
)

// Dispatcher 消息分发
type Dispatcher interface {
	Dispatch(e *common.QQEvent)
	Plugins() []plugin.Plugin
}

// Server 反向 websocket 服务端或正向 websocket 客户端
type Server struct {
	cfg        *common.Config
	store      *storage.Store
	dispatcher Dispatcher
	upgrader   websocket.Upgrader
	dialer     *websocket.Dialer
	started    time.Time

	mu      sync.Mutex
	current *onebot.Conn
	connWG  sync.WaitGroup
}

// New 创建服务，store 可以为 nil
func New(cfg *common.Config, store *storage.Store, d Dispatcher) *Server {
	return &Server{
		cfg:        cfg,
		store:      store,
		dispatcher: d,
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		started:    time.Now(),
	}
}

// Router HTTP 路由
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", s.handleWS)
	r.Get("/healthz", s.handleHealth)
	r.Get("/plugins", s.handlePlugins)
	return r
}

// Run 按配置的连接方式运行，直到 ctx 结束
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Server.Mode == "forward" {
		return s.runForward(ctx)
	}
	return s.runReverse(ctx)
}

func (s *Server) runReverse(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("🤖 %s 已就绪，等待 OneBot 连接 ws://%s/ws", s.cfg.BotName(), s.cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return errors.Wrap(err, "监听失败")
	case <-ctx.Done():
	}
	s.closeCurrent()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.connWG.Wait()
	return err
}

func (s *Server) runForward(ctx context.Context) error {
	interval := time.Duration(s.cfg.Server.ReconnectInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	header := http.Header{}
	if token := s.cfg.Server.AccessToken; token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	for {
		ws, _, err := s.dialer.DialContext(ctx, s.cfg.Server.URL, header)
		if err != nil {
			log.Warnf("连接 %s 失败: %v，%v 后重试", s.cfg.Server.URL, err, interval)
		} else {
			stop := context.AfterFunc(ctx, s.closeCurrent)
			s.connWG.Add(1)
			s.serveConn(ws)
			stop()
		}
		select {
		case <-ctx.Done():
			s.connWG.Wait()
			return nil
		case <-time.After(interval):
		}
	}
}

func (s *Server) authorized(r *http.Request) bool {
	token := s.cfg.Server.AccessToken
	if token == "" {
		return true
	}
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if got == "" {
		got = r.URL.Query().Get("access_token")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		log.Warnf("拒绝未授权的连接: %s", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("升级 WebSocket 失败: %v", err)
		return
	}
	s.connWG.Add(1)
	s.serveConn(ws)
}

// serveConn 阻塞到连接断开，调用前需 connWG.Add(1)
func (s *Server) serveConn(ws *websocket.Conn) {
	defer s.connWG.Done()
	conn := onebot.NewConn(ws, s.cfg.APITimeout())

	// 同一时间只保留一个连接，新连接替换旧连接
	s.mu.Lock()
	old := s.current
	s.current = conn
	s.mu.Unlock()
	if old != nil {
		log.Warn("收到新的连接，关闭旧连接")
		_ = old.Close()
	}
	common.SetConn(conn)
	log.Infof("✨ OneBot 成功连接: %s", ws.RemoteAddr())

	go s.fetchLoginInfo(conn)

	err := conn.Serve(s.onEvent)
	log.Warnf("连接中断: %v", err)

	common.ClearConn(conn)
	s.mu.Lock()
	if s.current == conn {
		s.current = nil
	}
	s.mu.Unlock()
	_ = ws.Close()
}

func (s *Server) fetchLoginInfo(conn *onebot.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.APITimeout())
	defer cancel()
	id, nickname, err := onebot.GetLoginInfo(ctx, conn)
	if err != nil {
		log.Warnf("获取登录信息失败: %v", err)
		return
	}
	if s.cfg.SelfID() == 0 {
		s.cfg.SetSelfID(id)
	} else if s.cfg.SelfID() != id {
		log.Warnf("配置的机器人QQ号 %d 与登录账号 %d 不一致", s.cfg.SelfID(), id)
	}
	log.Infof("登录账号: %s(%d)", nickname, id)
}

func (s *Server) closeCurrent() {
	s.mu.Lock()
	conn := s.current
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (s *Server) onEvent(data []byte) {
	ev, ok := onebot.ParseEvent(data)
	if !ok {
		return
	}
	if self := s.cfg.SelfID(); self != 0 && ev.UserID == self {
		return
	}
	e := common.NewQQEvent(ev)
	log.Infof("[收到] <- 用户:%d 群:%d 内容:%s", e.UserID, e.GroupID, ev.Message.Summary())
	s.record(e)
	s.dispatcher.Dispatch(e)
}

// record 更新群昵称映射，并把群聊消息加入上下文
func (s *Server) record(e *common.QQEvent) {
	if s.store == nil || !e.IsGroup() || e.UserID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if name := e.SenderName(); name != "" {
		if _, err := s.store.UpdateNickname(ctx, e.GroupID, e.UserID, name); err != nil {
			log.Warnf("更新昵称失败: %v", err)
		}
	} else {
		log.Debugf("未提取到昵称: 群%d 用户%d，将使用稳定标识符", e.GroupID, e.UserID)
	}
	if e.Content != "" {
		if err := s.store.AddGroupContext(ctx, e.GroupID, e.UserID, e.Content); err != nil {
			log.Warnf("记录群聊上下文失败: %v", err)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	connected := s.current != nil
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"connected": connected,
		"self_id":   s.cfg.SelfID(),
		"uptime":    int64(time.Since(s.started).Seconds()),
	})
}

type pluginInfo struct {
	Name     string `json:"name"`
	Brief    string `json:"brief"`
	Priority int    `json:"priority"`
}

func (s *Server) handlePlugins(w http.ResponseWriter, _ *http.Request) {
	ps := s.dispatcher.Plugins()
	out := make([]pluginInfo, 0, len(ps))
	for _, p := range ps {
		out = append(out, pluginInfo{Name: p.Name(), Brief: p.Brief(), Priority: p.Priority()})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
