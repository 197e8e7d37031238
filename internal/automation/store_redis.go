package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisKey is the hash holding the link table when none is configured.
const DefaultRedisKey = "graylogic:automation:links"

// RedisLinkStore implements LinkStore as a single Redis hash: one field per
// device ID, each value the JSON encoding of the row.
type RedisLinkStore struct {
	client redis.Cmdable
	key    string
	logger Logger
}

// NewRedisLinkStore creates a link store on the given hash key.
func NewRedisLinkStore(client redis.Cmdable, key string, logger Logger) *RedisLinkStore {
	if key == "" {
		key = DefaultRedisKey
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &RedisLinkStore{client: client, key: key, logger: logger}
}

// LoadAll returns every decodable row ordered by device ID. Fields that do
// not decode are logged and skipped.
func (s *RedisLinkStore) LoadAll(ctx context.Context) ([]AutomationLink, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading hash %q: %w", s.key, err)
	}

	links := make(map[string]AutomationLink, len(fields))
	for deviceID, value := range fields {
		var link AutomationLink
		if err := json.Unmarshal([]byte(value), &link); err != nil {
			s.logger.Warn("skipping undecodable link", "key", s.key, "device_id", deviceID, "error", err)
			continue
		}
		// The field name is the key; it wins over whatever the value claims.
		link.DeviceID = deviceID
		links[deviceID] = link
	}
	return sortedLinks(links), nil
}

// Upsert inserts or replaces the row for link.DeviceID.
func (s *RedisLinkStore) Upsert(ctx context.Context, link AutomationLink) error {
	if link.UpdatedAt.IsZero() {
		link.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("marshalling link: %w", err)
	}
	if err := s.client.HSet(ctx, s.key, link.DeviceID, data).Err(); err != nil {
		return fmt.Errorf("writing hash %q: %w", s.key, err)
	}
	return nil
}

// Remove deletes the row for deviceID. A missing field is not an error.
func (s *RedisLinkStore) Remove(ctx context.Context, deviceID string) error {
	if err := s.client.HDel(ctx, s.key, deviceID).Err(); err != nil {
		return fmt.Errorf("deleting from hash %q: %w", s.key, err)
	}
	return nil
}
