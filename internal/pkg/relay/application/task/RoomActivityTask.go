package task

import (
	"context"
	"encoding/json"
	"time"

	qport "github.com/mubasherdevv/friend-chatapp-sub000/internal/infrastructure/queue/port"
	repository "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/persistence/repository/port"
)

// RoomActivityTaskType stamps a room's last-activity time after a message
// lands. Done off the publish hot path through the queue; the handler is
// idempotent (it just writes now()), so retries are harmless.
const RoomActivityTaskType = "relay:room_activity"

// RoomActivityTaskPayload is the JSON payload transported via the queue.
type RoomActivityTaskPayload struct {
	RoomID string `json:"roomId"`
}

// EnqueueRoomActivity queues an activity touch for roomID. Best-effort: the
// caller treats enqueue failures as non-fatal.
func EnqueueRoomActivity(ctx context.Context, client qport.Client, roomID string) error {
	b, err := json.Marshal(RoomActivityTaskPayload{RoomID: roomID})
	if err != nil {
		return err
	}
	opts := qport.EnqueueOption{Queue: "relay", MaxRetry: 5, UniqueTTL: 10 * time.Second}
	_, err = client.Enqueue(ctx, qport.Task{Type: RoomActivityTaskType, Payload: b}, opts)
	return err
}

// RegisterRoomActivityTask binds the task handler to the provided server.
func RegisterRoomActivityTask(srv qport.Server, recorder repository.ActivityRecorder) {
	srv.Register(RoomActivityTaskType, func(ctx context.Context, t qport.Task) error {
		var p RoomActivityTaskPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			// malformed payload: retrying cannot help
			return err
		}
		if p.RoomID == "" {
			return nil
		}

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return recorder.TouchRoom(ctx, p.RoomID)
	})
}
