package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/madariss5/BLACKSKYMD-sub006/internal/connection"
	"github.com/madariss5/BLACKSKYMD-sub006/internal/protocol"
)

func (b *Bot) cmdPing(ctx context.Context, msg protocol.Message, args []string) (string, error) {
	return "pong", nil
}

// cmdStatus reports supervisor state and per-profile health.
func (b *Bot) cmdStatus(ctx context.Context, msg protocol.Message, args []string) (string, error) {
	st := b.sup.Stats()

	var sb strings.Builder
	fmt.Fprintf(&sb, "state: %s", st.State)
	if st.ActiveProfile != "" {
		fmt.Fprintf(&sb, ", profile: %s", st.ActiveProfile)
	}
	fmt.Fprintf(&sb, "\nopens: %d, disconnects: %d, retries: %d, rotations: %d",
		st.Opens, st.Disconnects, st.Retries, st.Rotations)
	for _, p := range st.Profiles {
		fmt.Fprintf(&sb, "\n%s: score %.2f, eligible %v, failures %d",
			p.Name, p.Score, p.Eligible, p.ConsecutiveFailures)
	}
	return sb.String(), nil
}

func (b *Bot) cmdUptime(ctx context.Context, msg protocol.Message, args []string) (string, error) {
	st := b.sup.Stats()
	if st.State != connection.StateOpen || st.ConnectedSince.IsZero() {
		return "not connected", nil
	}
	up := b.clock().Sub(st.ConnectedSince).Truncate(time.Second)
	return fmt.Sprintf("connected for %s via %s", up, st.ActiveProfile), nil
}

func (b *Bot) cmdHelp(ctx context.Context, msg protocol.Message, args []string) (string, error) {
	names := make([]string, 0, len(b.handlers))
	for name := range b.handlers {
		names = append(names, b.cfg.CommandPrefix+name)
	}
	sort.Strings(names)
	return "commands: " + strings.Join(names, " "), nil
}
