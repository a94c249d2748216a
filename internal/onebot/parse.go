package onebot

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ParseString 将CQ码字符串解析为消息段，遇到未闭合的CQ码时停止
func ParseString(raw string) Message {
	var m Message
	for raw != "" {
		i := strings.Index(raw, "[CQ:")
		if i < 0 {
			m = append(m, Text(UnescapeText(raw)))
			break
		}
		if i > 0 {
			m = append(m, Text(UnescapeText(raw[:i])))
		}
		raw = raw[i+len("[CQ:"):]
		end := strings.IndexByte(raw, ']')
		if end < 0 {
			break
		}
		body := raw[:end]
		raw = raw[end+1:]

		fields := strings.Split(body, ",")
		elem := Element{Type: fields[0]}
		for _, kv := range fields[1:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			elem.Data = append(elem.Data, Pair{K: k, V: UnescapeValue(v)})
		}
		m = append(m, elem)
	}
	return m
}

// ParseObject 将消息段数组(或单个消息段对象)转为消息
func ParseObject(r gjson.Result) Message {
	var m Message
	convert := func(seg gjson.Result) {
		elem := Element{Type: seg.Get("type").String()}
		seg.Get("data").ForEach(func(key, value gjson.Result) bool {
			elem.Data = append(elem.Data, Pair{K: key.String(), V: value.String()})
			return true
		})
		m = append(m, elem)
	}
	switch {
	case r.IsArray():
		r.ForEach(func(_, seg gjson.Result) bool {
			convert(seg)
			return true
		})
	case r.IsObject():
		convert(r)
	}
	return m
}

// ParseMessage 根据类型选择解析方式：字符串按CQ码，数组/对象按消息段
func ParseMessage(r gjson.Result) Message {
	if r.Type == gjson.String {
		return ParseString(r.String())
	}
	return ParseObject(r)
}
