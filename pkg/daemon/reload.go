package daemon

import (
	"strings"

	"github.com/seekd/seekd/internal/logger"
	"github.com/seekd/seekd/pkg/blacklist"
	"github.com/seekd/seekd/pkg/config"
	"github.com/seekd/seekd/pkg/events"
	"github.com/seekd/seekd/pkg/state"
)

// applyChange dispatches a validated configuration change to the live
// subsystems. Changes that cannot take effect in place raise the matching
// pending flag in the state store; the rest apply immediately. The new
// snapshot always replaces the old one so point-of-use readers pick it up.
func (d *Daemon) applyChange(change config.ConfigChange) {
	old := d.config()
	d.setConfig(change.New)

	if change.Empty() {
		logger.Info("configuration reloaded, no subsystem action required")
		return
	}

	pending := d.states.Current().Pending
	verdict := config.ApplyNow

	for _, sub := range change.Subsystems {
		v := sub.DefaultVerdict()
		switch sub {
		case config.SubsystemGroups:
			d.resolver.Reconfigure(change.New.Groups)
			d.engine.Reconfigure(change.New.Transfers)
			d.engine.SyncGroupLimits()
			d.reloadBlacklist(old.Blacklist, change.New.Blacklist)

		case config.SubsystemOverlayListener, config.SubsystemOverlayDistributed:
			// The controller reconnects on its own when the client says
			// the patched options need a fresh session.
			d.controller.ApplyOptions(change.New.Overlay)
			v = config.ApplyNow

		case config.SubsystemOverlayConnection:
			pending.Reconnect = true

		case config.SubsystemSharesPaths, config.SubsystemSharesFilters:
			if err := d.index.Reconfigure(change.New.Shares); err != nil {
				logger.Warn("share reconfiguration rejected", logger.Err(err))
			} else {
				pending.ShareRescan = true
			}

		case config.SubsystemIntegration:
			// Webhook dispatchers are built at startup.
			v = config.RequiresRestart
		}
		if v == config.RequiresRestart {
			pending.Restart = true
		}
		verdict = verdict.Merge(v)
	}
	if len(change.Other) > 0 {
		pending.Restart = true
		verdict = verdict.Merge(config.RequiresRestart)
	}

	d.states.Update(func(s state.Snapshot) state.Snapshot {
		return s.WithPending(pending)
	})
	d.bus.Publish(events.ConfigChangedEvent{
		BaseEvent:  events.NewBase(events.EventConfigChanged),
		Subsystems: change.SubsystemNames(),
	})
	logger.Info("configuration reloaded",
		"subsystems", strings.Join(change.SubsystemNames(), ","),
		"verdict", verdict.String())
}

// reloadBlacklist swaps the blacklist contents when its source changed.
// The new file is parsed into a scratch list first so a broken file never
// costs the coverage already loaded.
func (d *Daemon) reloadBlacklist(old, new config.BlacklistConfig) {
	if old == new {
		return
	}
	if new.Path == "" {
		d.list.Clear()
		logger.Info("blacklist disabled")
		return
	}
	format, err := blacklist.ParseFormat(new.Format)
	if err != nil {
		logger.Warn("blacklist format rejected", logger.Err(err))
		return
	}
	scratch := blacklist.New()
	if _, err := scratch.LoadFile(new.Path, format); err != nil {
		logger.Warn("blacklist reload failed, keeping previous list", logger.Err(err))
		return
	}
	d.list.Clear()
	n, err := d.list.LoadFile(new.Path, format)
	if err != nil {
		logger.Warn("blacklist reload failed", logger.Err(err))
		return
	}
	logger.Info("blacklist reloaded", logger.Path(new.Path), logger.Count(n))
}
