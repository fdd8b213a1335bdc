package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/trentd187/activity-lobby/internal/hub"
)

// RoomLister is the read side of the matchmaker. *hub.Matchmaker implements it.
type RoomLister interface {
	Rooms() []hub.RoomInfo
	Room(instanceID string) (hub.RoomInfo, bool)
}

// RoomResponse is the JSON shape of one room.
type RoomResponse struct {
	InstanceID  string   `json:"instance_id"`
	MemberCount int      `json:"member_count"`
	Members     []string `json:"members"` // Discord user ids, one entry per connection
}

func toRoomResponse(info hub.RoomInfo) RoomResponse {
	return RoomResponse{
		InstanceID:  info.InstanceID,
		MemberCount: len(info.Members),
		Members:     info.Members,
	}
}

// GetRooms returns a handler for GET /api/v1/rooms: every live room, ordered by instance id.
func GetRooms(rooms RoomLister) fiber.Handler {
	return func(c *fiber.Ctx) error {
		infos := rooms.Rooms()
		response := make([]RoomResponse, 0, len(infos))
		for _, info := range infos {
			response = append(response, toRoomResponse(info))
		}
		return c.JSON(response)
	}
}

// GetRoom returns a handler for GET /api/v1/rooms/:instanceID.
func GetRoom(rooms RoomLister) fiber.Handler {
	return func(c *fiber.Ctx) error {
		info, ok := rooms.Room(c.Params("instanceID"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "room not found",
			})
		}
		return c.JSON(toRoomResponse(info))
	}
}
