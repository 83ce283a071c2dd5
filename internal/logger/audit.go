package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

var (
	auditMu  sync.Mutex
	auditLog *log.Logger
)

// SetAuditWriter 指定风控审计日志的输出（nil 关闭）。
func SetAuditWriter(w io.Writer) {
	auditMu.Lock()
	defer auditMu.Unlock()
	if w == nil {
		auditLog = nil
		return
	}
	auditLog = log.New(w, "", log.LstdFlags)
}

// LogRiskEvent 把一次风控事件（强平、异常熔断）写成块状审计记录。
func LogRiskEvent(kind, symbol, title string, sections map[string]string) {
	auditMu.Lock()
	logger := auditLog
	auditMu.Unlock()
	if logger == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[RISK]")
	if kind != "" {
		b.WriteString("[" + kind + "]")
	}
	if symbol != "" {
		b.WriteString("[" + symbol + "]")
	}
	b.WriteString("\n")
	if title != "" {
		b.WriteString("--- TITLE ---\n")
		b.WriteString(title)
		b.WriteString("\n")
	}
	for name, body := range sections {
		t := strings.TrimSpace(name)
		if t == "" {
			t = "DETAIL"
		}
		b.WriteString("--- " + strings.ToUpper(t) + " ---\n")
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	logger.Print(b.String())
}
