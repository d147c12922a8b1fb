package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"qs_chat/internal/model"
	"qs_chat/internal/service/redis"
)

// RedisAnnounceQueue backs the offline announce queue with redis lists, one
// list per recipient.
type RedisAnnounceQueue struct {
	svc *redis.RedisService
}

func NewRedisAnnounceQueue(svc *redis.RedisService) *RedisAnnounceQueue {
	return &RedisAnnounceQueue{
		svc: svc,
	}
}

// Dequeue drains the offline queue for a user.
func (q *RedisAnnounceQueue) Dequeue(ctx context.Context, to string) ([]*model.Announce, error) {
	key := announceQueueKey(to)
	vals, err := q.svc.LRange(ctx, key)
	if err != nil {
		return nil, err
	}
	q.svc.Del(ctx, key)

	var res []*model.Announce
	for _, v := range vals {
		var frame model.Announce
		err := json.Unmarshal([]byte(v), &frame)
		if err != nil {
			return nil, err
		}

		res = append(res, &frame)
	}

	return res, nil
}

// Queue stores announce frames for a user without a live socket.
func (q *RedisAnnounceQueue) Queue(ctx context.Context, to string, frames []*model.Announce) error {
	if len(frames) == 0 {
		return nil
	}
	key := announceQueueKey(to)
	var vals []interface{}
	for _, frame := range frames {
		data, _ := json.Marshal(frame)
		vals = append(vals, data)
	}

	return q.svc.RPush(ctx, key, vals...)
}

func announceQueueKey(to string) string {
	return fmt.Sprintf("announces: %s", to)
}
