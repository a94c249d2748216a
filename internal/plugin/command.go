package plugin

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var commandPrefixes = []string{"/", "#", "！", "!"}

// MatchCommand 判断 content 是否为 names 中的某个命令，返回命令之后的参数。
// 命令前可以带 / # ！ ! 之一，命令词之后必须是空白或结尾；多个命令都能匹配时取最长的
func MatchCommand(content string, names ...string) (string, bool) {
	s := strings.TrimSpace(content)
	for _, p := range commandPrefixes {
		if strings.HasPrefix(s, p) {
			s = s[len(p):]
			break
		}
	}
	best := -1
	args := ""
	for _, name := range names {
		if name == "" || !strings.HasPrefix(s, name) || len(name) <= best {
			continue
		}
		rest := s[len(name):]
		if rest != "" {
			if r, _ := utf8.DecodeRuneInString(rest); !unicode.IsSpace(r) {
				continue
			}
		}
		best = len(name)
		args = strings.TrimSpace(rest)
	}
	return args, best >= 0
}
