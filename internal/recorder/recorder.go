package recorder

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/config"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/Logger"
)

// Entry is one line of a conversation transcript.
type Entry struct {
	Role string    `json:"role"` // "caller" or "bot"
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Recorder persists conversation transcripts for later retrieval.
// Recording failures never interrupt a live call.
type Recorder interface {
	Record(sessionID string, entry Entry)
	Transcript(sessionID string) ([]Entry, error)
}

// Noop discards everything. Used when recording is disabled.
type Noop struct{}

func (Noop) Record(string, Entry) {}

func (Noop) Transcript(string) ([]Entry, error) { return nil, nil }

// Redis appends transcript lines to a per-session list with a TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *Logger.Logger
}

func NewRedis(cfg config.RedisConfig, ttl time.Duration, logger *Logger.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping().Err(); err != nil {
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return &Redis{client: client, ttl: ttl, logger: logger}, nil
}

func transcriptKey(sessionID string) string {
	return "transcript:" + sessionID
}

// Record implements Recorder.
func (r *Redis) Record(sessionID string, entry Entry) {
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		r.logger.Warnf("transcript entry encode failed for %s: %v", sessionID, err)
		return
	}

	key := transcriptKey(sessionID)
	pipe := r.client.TxPipeline()
	pipe.RPush(key, raw)
	pipe.Expire(key, r.ttl)
	if _, err := pipe.Exec(); err != nil {
		r.logger.Warnf("transcript write failed for %s: %v", sessionID, err)
	}
}

// Transcript implements Recorder.
func (r *Redis) Transcript(sessionID string) ([]Entry, error) {
	raw, err := r.client.LRange(transcriptKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("transcript read failed: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, line := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			r.logger.Warnf("skipping corrupt transcript line for %s: %v", sessionID, err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

var (
	_ Recorder = Noop{}
	_ Recorder = (*Redis)(nil)
)
