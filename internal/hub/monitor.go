package hub

import (
	"github.com/FillingVoid7/PeerAid-sub001/internal/model"
)

// MonitorService gathers hub statistics for the monitor endpoint.
type MonitorService struct {
	registry *Registry
	rooms    *RoomManager
	calls    *CallCoordinator
}

func NewMonitorService(registry *Registry, rooms *RoomManager, calls *CallCoordinator) *MonitorService {
	return &MonitorService{
		registry: registry,
		rooms:    rooms,
		calls:    calls,
	}
}

// GetStats snapshots connections, rooms and in-flight calls.
func (ms *MonitorService) GetStats() model.MonitorResponse {
	clients, connStats := ms.registry.Snapshot()

	status := "healthy"
	if connStats.TotalConnections == 0 {
		status = "idle"
	}

	return model.MonitorResponse{
		Status:      status,
		Connections: connStats,
		Rooms:       ms.rooms.Snapshot(),
		Calls:       ms.calls.Snapshot(),
		Clients:     clients,
	}
}
