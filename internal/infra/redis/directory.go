package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"live-quiz-service/internal/domain"
)

const roomSnapshotFields = 11

// roomSnapshot is the msgpack form of a published room summary.
type roomSnapshot struct {
	info domain.RoomInfo
}

func (s *roomSnapshot) EncodeMsgpack(e *msgpack.Encoder) error {
	if err := e.EncodeArrayLen(roomSnapshotFields); err != nil {
		return err
	}
	if err := e.EncodeString(s.info.ID); err != nil {
		return err
	}
	if err := e.EncodeString(s.info.Name); err != nil {
		return err
	}
	if err := e.EncodeString(s.info.HostID); err != nil {
		return err
	}
	if err := e.EncodeString(s.info.QuizID); err != nil {
		return err
	}
	if err := e.EncodeBool(s.info.TimerEnabled); err != nil {
		return err
	}
	if err := e.EncodeInt(int64(s.info.TimerDuration)); err != nil {
		return err
	}
	if err := e.EncodeString(string(s.info.Lifecycle)); err != nil {
		return err
	}
	if err := e.Encode(s.info.Members); err != nil {
		return err
	}
	if err := e.EncodeInt(int64(s.info.Polls)); err != nil {
		return err
	}
	if err := e.EncodeBool(s.info.LivePoll); err != nil {
		return err
	}
	return e.EncodeTime(s.info.CreatedAt)
}

func (s *roomSnapshot) DecodeMsgpack(d *msgpack.Decoder) error {
	l, err := d.DecodeArrayLen()
	if err != nil {
		return err
	}
	if l != roomSnapshotFields {
		return fmt.Errorf("array len doesn't match: %d", l)
	}
	if s.info.ID, err = d.DecodeString(); err != nil {
		return err
	}
	if s.info.Name, err = d.DecodeString(); err != nil {
		return err
	}
	if s.info.HostID, err = d.DecodeString(); err != nil {
		return err
	}
	if s.info.QuizID, err = d.DecodeString(); err != nil {
		return err
	}
	if s.info.TimerEnabled, err = d.DecodeBool(); err != nil {
		return err
	}
	if s.info.TimerDuration, err = d.DecodeInt(); err != nil {
		return err
	}
	lifecycle, err := d.DecodeString()
	if err != nil {
		return err
	}
	s.info.Lifecycle = domain.Lifecycle(lifecycle)
	if err := d.Decode(&s.info.Members); err != nil {
		return err
	}
	if s.info.Polls, err = d.DecodeInt(); err != nil {
		return err
	}
	if s.info.LivePoll, err = d.DecodeBool(); err != nil {
		return err
	}
	s.info.CreatedAt, err = d.DecodeTime()
	return err
}

// Directory publishes room summaries so any instance can answer "where is
// room X and what state is it in". Entries expire unless refreshed.
type Directory struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDirectory(client *redis.Client, ttl time.Duration) *Directory {
	return &Directory{client: client, ttl: ttl}
}

func (d *Directory) Put(ctx context.Context, info domain.RoomInfo) error {
	data, err := msgpack.Marshal(&roomSnapshot{info: info})
	if err != nil {
		return fmt.Errorf("encode room %s: %w", info.Name, err)
	}
	return d.client.Set(ctx, d.key(info.Name), data, d.ttl).Err()
}

func (d *Directory) Get(ctx context.Context, name string) (domain.RoomInfo, error) {
	data, err := d.client.Get(ctx, d.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RoomInfo{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.RoomInfo{}, fmt.Errorf("get room %s: %w", name, err)
	}
	var snap roomSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return domain.RoomInfo{}, fmt.Errorf("decode room %s: %w", name, err)
	}
	return snap.info, nil
}

func (d *Directory) Remove(ctx context.Context, name string) error {
	return d.client.Del(ctx, d.key(name)).Err()
}

func (d *Directory) key(name string) string {
	return "quiz:room:" + name
}
