package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightpath-edu/tutoring-platform/internal/model"
	"github.com/brightpath-edu/tutoring-platform/pkg/logger"
)

type captureRelay struct {
	frames []RelayFrame
}

func (r *captureRelay) Publish(_ string, data []byte) error {
	var frame RelayFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	r.frames = append(r.frames, frame)
	return nil
}

func testConn(t *testing.T) *Conn {
	t.Helper()
	return newConn(nil, "U1", logger.NewNop())
}

func drain(c *Conn) []Envelope {
	var out []Envelope
	for {
		select {
		case data := <-c.send:
			var env Envelope
			if err := json.Unmarshal(data, &env); err == nil {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func TestBroadcastReachesRoomMembersOnly(t *testing.T) {
	hub := NewHub(nil, logger.NewNop())
	member := testConn(t)
	outsider := testConn(t)

	room := model.LessonRoom("T1", "L1")
	hub.Join(room, member)
	hub.Join(model.LessonRoom("T1", "L2"), outsider)

	hub.Broadcast(room, model.EventMessage, &model.ChatMessageEvent{
		Role:    model.RoleAssistant,
		Content: "hello",
	})

	got := drain(member)
	require.Len(t, got, 1)
	assert.Equal(t, model.EventMessage, got[0].Type)

	var msg model.ChatMessageEvent
	require.NoError(t, json.Unmarshal(got[0].Payload, &msg))
	assert.Equal(t, "hello", msg.Content)

	assert.Empty(t, drain(outsider))
}

func TestLeaveStopsDelivery(t *testing.T) {
	hub := NewHub(nil, logger.NewNop())
	c := testConn(t)
	room := model.LessonRoom("T1", "L1")

	hub.Join(room, c)
	hub.Leave(room, c)
	hub.Broadcast(room, model.EventAITyping, &model.TypingEvent{Typing: true})

	assert.Empty(t, drain(c))
}

func TestDropLeavesAllRooms(t *testing.T) {
	hub := NewHub(nil, logger.NewNop())
	c := testConn(t)

	hub.Join(model.LessonRoom("T1", "L1"), c)
	hub.Join(model.UserRoom("U1"), c)
	hub.Drop(c)

	hub.Broadcast(model.LessonRoom("T1", "L1"), model.EventMessage, struct{}{})
	hub.NotifyUser("U1", "notice", struct{}{})

	assert.Empty(t, drain(c))
}

func TestNotifyUserTargetsPrivateChannel(t *testing.T) {
	hub := NewHub(nil, logger.NewNop())
	c := testConn(t)
	hub.Join(model.UserRoom("U1"), c)

	hub.NotifyUser("U1", "lesson-assigned", map[string]string{"lessonId": "L9"})

	got := drain(c)
	require.Len(t, got, 1)
	assert.Equal(t, "lesson-assigned", got[0].Type)
}

func TestBroadcastMirrorsToRelay(t *testing.T) {
	relay := &captureRelay{}
	hub := NewHub(relay, logger.NewNop())
	room := model.LessonRoom("T1", "L1")

	hub.Broadcast(room, model.EventMessage, &model.ChatMessageEvent{Content: "x"})

	require.Len(t, relay.frames, 1)
	assert.Equal(t, hub.ID(), relay.frames[0].Origin)
	assert.Equal(t, room, relay.frames[0].Room)
}

func TestDeliverRelayedSkipsOwnFrames(t *testing.T) {
	hub := NewHub(nil, logger.NewNop())
	c := testConn(t)
	room := model.LessonRoom("T1", "L1")
	hub.Join(room, c)

	data, err := encodeEnvelope(model.EventMessage, &model.ChatMessageEvent{Content: "remote"})
	require.NoError(t, err)

	// A frame from another instance delivers exactly once.
	hub.DeliverRelayed(&RelayFrame{Origin: "other-instance", Room: room, Data: data})
	require.Len(t, drain(c), 1)

	// A frame with our own origin was already delivered locally.
	hub.DeliverRelayed(&RelayFrame{Origin: hub.ID(), Room: room, Data: data})
	assert.Empty(t, drain(c))
}
