package http

import (
	"errors"
	"fmt"
	"testing"

	"live-quiz-service/internal/domain"
)

func TestConnOfferDropsOldest(t *testing.T) {
	c := newConn("s1", nil)
	for i := 0; i <= sendBuffer; i++ {
		queued, _ := c.offer([]byte(fmt.Sprint(i)))
		if !queued {
			t.Fatalf("message %d not queued", i)
		}
	}
	if len(c.send) != sendBuffer {
		t.Fatalf("queue length %d, want %d", len(c.send), sendBuffer)
	}
	if first := string(<-c.send); first != "1" {
		t.Fatalf("oldest message should have been dropped, head is %s", first)
	}

	c.closeSend()
	c.closeSend()
	if queued, _ := c.offer([]byte("late")); queued {
		t.Fatalf("closed conn accepted a message")
	}
}

func TestHubDeliverUnknownSession(t *testing.T) {
	hub := NewHub(nil)
	if hub.Deliver("ghost", []byte("x")) {
		t.Fatalf("delivery to unknown session reported success")
	}

	c := newConn("s1", nil)
	hub.mu.Lock()
	hub.conns[c.sessionID] = c
	hub.mu.Unlock()
	if !hub.Deliver("s1", []byte("x")) {
		t.Fatalf("delivery to registered session failed")
	}
	hub.unregister(c)
	if hub.Deliver("s1", []byte("x")) || hub.Len() != 0 {
		t.Fatalf("session still reachable after unregister")
	}
}

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    domain.Command
		wantErr error
	}{
		{
			name: "join",
			raw:  `{"type":"join_room","payload":{"roomName":"R1","passcode":"p","username":"Al"}}`,
			want: domain.JoinRoom{RoomName: "R1", Passcode: "p", Username: "Al"},
		},
		{
			name: "vote",
			raw:  `{"type":"submit_vote","payload":{"roomName":"R1","selectedOptions":["A","C"]}}`,
			want: domain.SubmitVote{RoomName: "R1", SelectedOptions: []string{"A", "C"}},
		},
		{
			name: "completion with mixed answers",
			raw:  `{"type":"quiz_finished","payload":{"roomName":"R1","quizId":"q","answers":["x",["a","b"],null]}}`,
			want: domain.RecordCompletion{RoomName: "R1", QuizID: "q", Answers: []domain.AnswerValue{{"x"}, {"a", "b"}, nil}},
		},
		{name: "leave without payload", raw: `{"type":"leave_room"}`, want: domain.LeaveRoom{}},
		{name: "unknown type", raw: `{"type":"answer","payload":{}}`, wantErr: domain.ErrUnknownCommand},
		{name: "bad envelope", raw: `[1,2]`, wantErr: domain.ErrInvalidInput},
		{name: "bad payload", raw: `{"type":"go_live_poll","payload":{"pollIndex":"zero"}}`, wantErr: domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeCommand([]byte(tt.raw))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if fmt.Sprintf("%#v", got) != fmt.Sprintf("%#v", tt.want) {
				t.Fatalf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}
