package app

import (
	"jambot/internal/notifier"
	rtsup "jambot/internal/runtime/supervisor"
)

// runtimeStatus feeds the HTTP runtime view.
type runtimeStatus struct{ a *App }

func (s runtimeStatus) Supervisors() map[string]rtsup.Snapshot {
	out := map[string]rtsup.Snapshot{"app": s.a.sup.Snapshot()}
	if s.a.adapter != nil {
		out["telegram"] = s.a.adapter.Supervisor().Snapshot()
	}
	if s.a.notif != nil {
		out["notifier"] = s.a.notif.Supervisor().Snapshot()
	}
	return out
}

func (s runtimeStatus) Deliveries() []notifier.HistoryItem {
	if s.a.notif == nil {
		return nil
	}
	return s.a.notif.History()
}
