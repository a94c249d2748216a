// Package plugins 汇总内置插件，导入后即完成注册
package plugins

import (
	_ "qqbot/internal/plugins/bilibili"
	_ "qqbot/internal/plugins/chat"
	_ "qqbot/internal/plugins/help"
	_ "qqbot/internal/plugins/manage"
	_ "qqbot/internal/plugins/qrcode"
	_ "qqbot/internal/plugins/repeat"
	_ "qqbot/internal/plugins/schedule"
	_ "qqbot/internal/plugins/search"
	_ "qqbot/internal/plugins/signin"
	_ "qqbot/internal/plugins/status"
	_ "qqbot/internal/plugins/wallpaper"
	_ "qqbot/internal/plugins/wife"
)
