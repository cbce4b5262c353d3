package view

import (
	"fmt"
	"html/template"
	"time"

	"github.com/noirblog/internal/service"
)

// FuncMap 返回模板中可用的辅助函数。
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"add": func(a, b int) int {
			return a + b
		},
		"sub": func(a, b int) int {
			return a - b
		},
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("2006-01-02 15:04")
		},
		"relativeTime": func(t time.Time) string {
			return formatRelativeTime(time.Now(), t)
		},
		"markdown": func(body string) template.HTML {
			rendered, err := RenderMarkdown(body)
			if err != nil {
				return template.HTML(template.HTMLEscapeString(body))
			}
			return rendered
		},
		"excerpt":        Excerpt,
		"attachmentName": service.DisplayName,
	}
}

func formatRelativeTime(now, t time.Time) string {
	if t.IsZero() {
		return ""
	}

	diff := now.Sub(t)
	if diff < time.Minute {
		return "just now"
	}

	switch {
	case diff < time.Hour:
		return plural(int(diff/time.Minute), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff/time.Hour), "hour")
	case diff < 30*24*time.Hour:
		return plural(int(diff/(24*time.Hour)), "day")
	case diff < 365*24*time.Hour:
		return plural(int(diff/(30*24*time.Hour)), "month")
	default:
		return plural(int(diff/(365*24*time.Hour)), "year")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
