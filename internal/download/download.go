// Package download 插件共用的 HTTP 客户端，带一次重试、JSON 解析与图片缓存
package download

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"qqbot/internal/cache"
)

const (
	// UserAgent 默认请求头
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	maxBody   = 16 << 20
	maxTries  = 2
)

var (
	// ErrStatus 非 2xx 响应
	ErrStatus = errors.New("unexpected http status")
	// ErrNotImage 下载内容不是图片
	ErrNotImage = errors.New("content is not an image")
)

// Client 共用客户端
var Client = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	},
	Timeout: 60 * time.Second,
}

// Header 额外请求头
type Header map[string]string

// Do 发送请求并读取响应体。网络错误与 5xx 重试一次
func Do(ctx context.Context, method, url string, header Header, body []byte) ([]byte, error) {
	var lastErr error
	for i := 0; i < maxTries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(300 * time.Millisecond):
			}
		}
		data, retry, err := do(ctx, method, url, header, body)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
		log.Debugf("[下载] %s 第 %d 次失败: %v", url, i+1, err)
	}
	return nil, lastErr
}

func do(ctx context.Context, method, url string, header Header, body []byte) ([]byte, bool, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, false, errors.Wrap(err, "创建请求失败")
	}
	req.Header.Set("User-Agent", UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := Client.Do(req)
	if err != nil {
		return nil, true, errors.Wrapf(err, "请求 %s 失败", url)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, true, errors.Wrap(err, "读取响应失败")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode >= 500, errors.Wrapf(ErrStatus, "%s: %d %s", url, resp.StatusCode, snippet(data))
	}
	return data, false, nil
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if r := []rune(s); len(r) > 120 {
		return string(r[:120]) + "..."
	}
	return s
}

// Get GET 请求
func Get(ctx context.Context, url string, header Header) ([]byte, error) {
	return Do(ctx, http.MethodGet, url, header, nil)
}

// GetJSON GET 请求并解析为 gjson
func GetJSON(ctx context.Context, url string, header Header) (gjson.Result, error) {
	data, err := Get(ctx, url, header)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, errors.Errorf("%s 返回的不是 JSON: %s", url, snippet(data))
	}
	return gjson.ParseBytes(data), nil
}

// PostJSON 以 JSON 编码 payload 发送 POST 请求
func PostJSON(ctx context.Context, url string, header Header, payload any) (gjson.Result, error) {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return gjson.Result{}, errors.Wrap(err, "序列化请求失败")
	}
	data, err := Do(ctx, http.MethodPost, url, header, body)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, errors.Errorf("%s 返回的不是 JSON: %s", url, snippet(data))
	}
	return gjson.ParseBytes(data), nil
}

// Image 下载图片，disk 不为 nil 时先查缓存，成功后写入缓存
func Image(ctx context.Context, disk *cache.Disk, url string) ([]byte, error) {
	key := cache.Key(url)
	if disk != nil {
		if data, ok := disk.Get(key); ok {
			return data, nil
		}
	}
	data, err := Get(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "image/") {
		return nil, errors.Wrapf(ErrNotImage, "%s: %s", url, mt.String())
	}
	if disk != nil {
		if err := disk.Put(key, data); err != nil {
			log.Warnf("[下载] 写入图片缓存失败: %v", err)
		}
	}
	return data, nil
}
