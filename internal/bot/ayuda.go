package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

func (b *Bot) cmdAyuda(ctx context.Context, req Request) error {
	names := make([]string, 0, len(b.commands))
	for name := range b.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		cmd := b.commands[name]
		lines = append(lines, fmt.Sprintf("• %s — %s", cmd.Usage, cmd.Description))
	}

	b.send(req.RoomID, fmt.Sprintf(
		"📘 Comandos disponibles:\n\n%s\n\nUsa !<comando> para ejecutarlos.",
		strings.Join(lines, "\n"),
	))
	return nil
}
