package app

import (
	"context"
	"strings"

	"trellobot/internal/config"
	logx "trellobot/pkg/logx"
)

// reloadLoop applies configs published by the watcher. Sections marked
// restart-required by SummarizeConfigChange only log a warning; the rest
// apply live.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

func (a *App) applyConfig(prev, next *Config) {
	ch := SummarizeConfigChange(prev, next)
	if len(ch.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
	a.log.Debug("config change summary", fields...)

	// target first so Apply doesn't warn about a missing chat log channel
	a.logs.SetChatTarget(logTarget(next))
	a.logs.Apply(mapLogConfig(next))

	if a.notify != nil {
		a.notify.SetEvents(next.EventsOrDefault())
		a.notify.SetUsers(next.Users)
		a.notify.SetBotName(botName(next, a.adapter.Self()))
	}
	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}
	if err := a.maint.Apply(mapMaintenanceConfig(next)); err != nil {
		a.log.Warn("invalid maintenance config; keeping previous", logx.Err(err))
	}
	if a.pprof != nil {
		a.pprof.Apply(context.Background(), mapPprofConfig(next))
	}

	if len(ch.RestartRequired) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(ch.RestartRequired, ",")))
	}
	a.log.Info("config reloaded", logx.String("changed", strings.Join(ch.Sections, ",")))
}
