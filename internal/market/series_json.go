package market

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// 上游管线导出的 JSON 字段名并不统一（date/time/timestamp、close/price…），
// 这里用 gjson 做宽松解析而不是定义一堆 DTO。
var (
	timeKeys   = []string{"time", "date", "timestamp", "ts"}
	closeKeys  = []string{"close", "price", "value"}
	volumeKeys = []string{"volume", "vol"}
	openKeys   = []string{"open"}
	highKeys   = []string{"high"}
	lowKeys    = []string{"low"}
)

// ParseSeriesJSON 解析形如 [{...}, ...] 或 {"data": [...]} 的历史序列。
func ParseSeriesJSON(raw []byte) ([]Candle, error) {
	root := gjson.ParseBytes(raw)
	arr := root
	if !root.IsArray() {
		arr = root.Get("data")
		if !arr.IsArray() {
			return nil, fmt.Errorf("series JSON 需为数组或含 data 数组")
		}
	}
	var out []Candle
	var parseErr error
	arr.ForEach(func(_, item gjson.Result) bool {
		ts, ok := pickTime(item)
		if !ok {
			parseErr = fmt.Errorf("序列条目缺少时间字段: %s", item.Raw)
			return false
		}
		closePx, ok := pickFloat(item, closeKeys)
		if !ok {
			parseErr = fmt.Errorf("序列条目缺少价格字段: %s", item.Raw)
			return false
		}
		c := Candle{Time: ts, Close: closePx}
		if v, ok := pickFloat(item, volumeKeys); ok {
			c.Volume = v
		}
		if v, ok := pickFloat(item, openKeys); ok {
			c.Open = v
		} else {
			c.Open = closePx
		}
		if v, ok := pickFloat(item, highKeys); ok {
			c.High = v
		} else {
			c.High = closePx
		}
		if v, ok := pickFloat(item, lowKeys); ok {
			c.Low = v
		} else {
			c.Low = closePx
		}
		out = append(out, c)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("series JSON 为空")
	}
	return NormalizeSeries(out), nil
}

func pickFloat(item gjson.Result, keys []string) (float64, bool) {
	for _, k := range keys {
		if v := item.Get(k); v.Exists() {
			return v.Float(), true
		}
	}
	return 0, false
}

func pickTime(item gjson.Result) (int64, bool) {
	for _, k := range timeKeys {
		v := item.Get(k)
		if !v.Exists() {
			continue
		}
		if v.Type == gjson.Number {
			n := v.Int()
			// 秒级时间戳统一抬到毫秒。
			if n > 0 && n < 1e12 {
				n *= 1000
			}
			return n, n > 0
		}
		s := strings.TrimSpace(v.String())
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UnixMilli(), true
			}
		}
	}
	return 0, false
}
