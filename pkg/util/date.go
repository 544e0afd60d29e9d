package util

import (
	"strconv"
	"strings"
	"time"
)

var dateTokens = strings.NewReplacer(
	"YYYY", "2006",
	"YY", "06",
	"MM", "01",
	"DD", "02",
	"hh", "15",
	"mm", "04",
	"ss", "05",
)

// FormatDateTpl formats a Unix millisecond timestamp in UTC using the
// YYYY, YY, MM, DD, hh, mm and ss placeholders. Zero renders as "".
//
//	FormatDateTpl(1699603200000, "YYYY-MM-DD hh:mm") // "2023-11-10 08:00"
func FormatDateTpl(ts int64, tpl string) string {
	if ts == 0 {
		return ""
	}
	return time.UnixMilli(ts).UTC().Format(dateTokens.Replace(tpl))
}

// DiscordTimestamp renders t as a Discord timestamp markup, e.g. <t:1699603200:R>.
func DiscordTimestamp(t time.Time, style byte) string {
	return "<t:" + strconv.FormatInt(t.Unix(), 10) + ":" + string(style) + ">"
}
