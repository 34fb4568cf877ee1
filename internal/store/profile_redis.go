// profile_redis.go

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"
)

// Redis键名
const (
	// ProfileKeyPrefix 档案文档键前缀
	ProfileKeyPrefix = "profile:"

	// ProfileChannelPrefix 档案更新频道前缀
	ProfileChannelPrefix = "profile:updates:"
)

// RedisProfileStore 基于Redis的档案文档存储
// 文档为一个Hash，HSET按顶层字段合并写入；更新通过Pub/Sub推送给其他会话
type RedisProfileStore struct {
	client *redis.Client
}

// NewRedisProfileStore 创建Redis档案存储
func NewRedisProfileStore(client *redis.Client) *RedisProfileStore {
	return &RedisProfileStore{client: client}
}

// updateMessage 档案更新广播消息
type updateMessage struct {
	Origin string            `json:"origin"`
	Doc    map[string]string `json:"doc"`
}

// Load 读取档案文档
func (s *RedisProfileStore) Load(ctx context.Context, userID string) (map[string]string, bool, error) {
	fields, err := s.client.HGetAll(ctx, ProfileKeyPrefix+userID).Result()
	if err != nil {
		return nil, false, fmt.Errorf("读取档案文档失败: %w", err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	return fields, true, nil
}

// Save 合并写入档案快照并广播
func (s *RedisProfileStore) Save(ctx context.Context, userID, origin string, doc map[string]string) error {
	if err := s.client.HSet(ctx, ProfileKeyPrefix+userID, doc).Err(); err != nil {
		return fmt.Errorf("写入档案文档失败: %w", err)
	}

	payload, err := json.Marshal(updateMessage{Origin: origin, Doc: doc})
	if err != nil {
		return fmt.Errorf("序列化更新消息失败: %w", err)
	}

	if err := s.client.Publish(ctx, ProfileChannelPrefix+userID, payload).Err(); err != nil {
		// 广播失败不影响已完成的写入
		log.Printf("广播档案更新失败: %v", err)
	}

	return nil
}

// Subscribe 订阅远端档案更新
func (s *RedisProfileStore) Subscribe(ctx context.Context, userID, origin string) (<-chan map[string]string, func(), error) {
	pubsub := s.client.Subscribe(ctx, ProfileChannelPrefix+userID)

	// 确认订阅建立
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("订阅档案更新失败: %w", err)
	}

	out := make(chan map[string]string, 8)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var update updateMessage
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				log.Printf("解析档案更新消息失败: %v", err)
				continue
			}
			// 忽略本会话自己发出的更新
			if update.Origin == origin {
				continue
			}
			out <- update.Doc
		}
	}()

	cancel := func() {
		if err := pubsub.Close(); err != nil {
			log.Printf("取消档案订阅失败: %v", err)
		}
	}

	return out, cancel, nil
}
