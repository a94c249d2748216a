package storage

import (
	"crypto/md5"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// StableID 用户的稳定标识符（基于QQ号的哈希，如"用户AA"）
// 两个字母（AA-ZZ）最多区分676个用户
func StableID(userID int64) string {
	hash := md5.Sum([]byte(strconv.FormatInt(userID, 10)))
	first := (uint32(hash[0])<<8 | uint32(hash[1])) % 26
	second := (uint32(hash[2])<<8 | uint32(hash[3])) % 26
	return "用户" + string(rune('A'+first)) + string(rune('A'+second))
}

func logDBError(op string, err error) {
	log.Warnf("[数据库] %s失败: %v", op, err)
}
