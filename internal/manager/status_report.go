package manager

import (
	"ailib/pkg/types"
)

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	now := m.now()
	resp := types.StatusResponse{
		State:          "ready",
		Models:         m.reg.Len(),
		Plugins:        m.plugins.Names(),
		Queue:          m.queue.Counts(),
		Load:           m.adm.usage(),
		EventsDropped:  m.bus.Dropped(),
		UptimeSeconds:  int64(now.Sub(m.started).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
	if m.monitor != nil {
		resp.Metrics = m.monitor.Metrics()
	}
	switch {
	case m.isClosed():
		resp.State = "closed"
	case resp.Models == 0:
		resp.State = "empty"
	}
	return resp
}
