package broker

import (
	"syscall"

	"room-broker/internal/protocol"
)

// StatsSnapshot reports the broker's live state: visible room
// descriptors, a count of hidden rooms, connected clients, uptime and the
// process's cumulative CPU share since start.
func (m *Manager) StatsSnapshot() protocol.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms := make([]protocol.RoomDescriptor, 0, len(m.order))
	hidden := 0
	for _, key := range m.order {
		r := m.rooms[key]
		if r.hidden {
			hidden++
			continue
		}
		rooms = append(rooms, r.Descriptor())
	}

	uptime := m.now().Sub(m.started)
	return protocol.Stats{
		Rooms:       rooms,
		RoomsHidden: hidden,
		Clients:     len(m.clients),
		UptimeMs:    uptime.Milliseconds(),
		CPUUsage:    cpuUsage(uptime.Seconds()),
	}
}

// cpuUsage is the fraction of one core the process has used since start.
func cpuUsage(uptimeSeconds float64) float64 {
	if uptimeSeconds <= 0 {
		return 0
	}
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	cpuSeconds := float64(ru.Utime.Nano()+ru.Stime.Nano()) / 1e9
	return cpuSeconds / uptimeSeconds
}
