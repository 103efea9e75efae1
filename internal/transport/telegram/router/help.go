package router

import (
	"html"
	"sort"
	"strings"
)

// helpText renders the command list in HTML parse mode. Owner-only
// commands are listed only for owners.
func (m *CommandManager) helpText(owner bool) string {
	m.mu.RLock()
	list := append([]Command(nil), m.list...)
	m.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	var b strings.Builder
	b.WriteString("<b>Команды</b>\n")
	for _, c := range list {
		if c.Access == AccessOwnerOnly && !owner {
			continue
		}
		u := c.Usage
		if u == "" {
			u = "/" + c.Name
		}
		b.WriteString("<code>" + html.EscapeString(u) + "</code>")
		if c.Description != "" {
			b.WriteString(" · " + html.EscapeString(c.Description))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
