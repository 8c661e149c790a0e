package router

import (
	"html"
	"strings"
)

func (rt *Router) helpText() string {
	lines := []string{"📚 <b>Commands</b>", ""}
	for _, c := range rt.Commands() {
		line := "• <code>/" + html.EscapeString(c.Name) + "</code>"
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " : " + html.EscapeString(d)
		}
		lines = append(lines, line)
		if u := strings.TrimSpace(c.Usage); u != "" && u != "/"+c.Name {
			lines = append(lines, "   <code>"+html.EscapeString(u)+"</code>")
		}
	}
	return strings.Join(lines, "\n")
}
