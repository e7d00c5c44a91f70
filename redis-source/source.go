package redis_source

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis"
	"github.com/rs/zerolog/log"

	"propagation-benchmark/datastructures"
)

// BlockEntry is the JSON value testbed nodes push for every block they
// touch, keyed block-<height>-<node>. Stamps are unix milliseconds,
// zero while the lifecycle step has not happened yet.
type BlockEntry struct {
	Node     string `json:"node"`
	Height   uint64 `json:"height"`
	Sealed   int64  `json:"sealed"`
	Imported int64  `json:"imported"`
}

var redisClient *redis.Client
var redisMutex sync.Mutex

func redisInitClient(addr string) {
	redisMutex.Lock()
	if redisClient == nil {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: "",
			DB:       0,
		})
		log.Info().Str("addr", addr).Msg("redis initialized")
	}
	redisMutex.Unlock()
}

// GetClient hands out the shared client, reconnecting when the
// connection went away between runs.
func GetClient(addr string) *redis.Client {
	redisInitClient(addr)
	redisMutex.Lock()
	_, err := redisClient.Ping().Result()
	if err != nil {
		redisClient = nil
	}
	redisMutex.Unlock()
	redisInitClient(addr)
	return redisClient
}

// CollectEvents reads every node's block entries out of redis and
// turns them into marker events, window-filtered. Used instead of the
// log download when the testbed publishes markers directly.
func CollectEvents(addr string, nodes []string, from time.Time, to time.Time) (map[string][]datastructures.BlockEvent, error) {
	client := GetClient(addr)
	all := make(map[string][]datastructures.BlockEvent)

	for _, node := range nodes {
		var cursor uint64
		for {
			keys, next, err := client.Scan(cursor, "block-*-"+node, 0).Result()
			if err != nil {
				return nil, err
			}
			cursor = next
			for _, key := range keys {
				val, err := client.Get(key).Result()
				if err == redis.Nil {
					// Ignore no such entry
					continue
				} else if err != nil {
					log.Warn().Str("key", key).Err(err).Msg("redis get failed")
					continue
				}
				var stored BlockEntry
				if err := json.Unmarshal([]byte(val), &stored); err != nil {
					log.Warn().Str("key", key).Err(err).Msg("dropping unparseable block entry")
					continue
				}
				if stored.Node == "" {
					stored.Node = node
				}
				all[node] = append(all[node], EntryEvents(stored, from, to)...)
			}
			if cursor == 0 { // no more keys
				break
			}
		}
	}
	return all, nil
}

// EntryEvents converts one stored entry into marker events. The whole
// entry is window-filtered on its stamps, matching how downloaded logs
// are scoped to [from, to].
func EntryEvents(e BlockEntry, from time.Time, to time.Time) []datastructures.BlockEvent {
	if e.Sealed > 0 && e.Sealed < from.UnixMilli() {
		return nil
	}
	if e.Imported > 0 && e.Imported > to.UnixMilli() {
		return nil
	}
	var events []datastructures.BlockEvent
	if e.Sealed > 0 {
		events = append(events, datastructures.BlockEvent{
			Node:      e.Node,
			Height:    e.Height,
			Kind:      datastructures.MarkerSealed,
			Timestamp: time.UnixMilli(e.Sealed).UTC(),
		})
	}
	if e.Imported > 0 {
		events = append(events, datastructures.BlockEvent{
			Node:      e.Node,
			Height:    e.Height,
			Kind:      datastructures.MarkerImported,
			Timestamp: time.UnixMilli(e.Imported).UTC(),
		})
	}
	return events
}
