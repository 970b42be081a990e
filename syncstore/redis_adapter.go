// Package syncstore shares a production sheet session between operators
// through Redis.
package syncstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/zenibako/prodsheet-golang/messages"
	"github.com/zenibako/prodsheet-golang/sheet"
)

// DefaultPresenceTTL is how long an operator counts as editing after their
// last heartbeat.
const DefaultPresenceTTL = 30 * time.Second

var _ sheet.SyncAdapter = (*RedisAdapter)(nil)

// RedisAdapter implements sheet.SyncAdapter for one session. Blocks are one
// JSON value, edits and resolutions are hashes keyed by item, and every
// write is announced on the session's update channel.
type RedisAdapter struct {
	client      *redis.Client
	keys        *messages.KeyBuilder
	origin      string
	author      string
	presenceTTL time.Duration
	now         func() time.Time
}

// NewRedisAdapter connects to redisURL and scopes the adapter to session.
func NewRedisAdapter(redisURL string, session sheet.SessionID) (*RedisAdapter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisAdapterWithClient(client, session), nil
}

// NewRedisAdapterWithClient creates an adapter from an existing client.
func NewRedisAdapterWithClient(client *redis.Client, session sheet.SessionID) *RedisAdapter {
	return &RedisAdapter{
		client:      client,
		keys:        messages.NewKeyBuilder(messages.DefaultPrefix, session.String()),
		origin:      uuid.NewString(),
		presenceTTL: DefaultPresenceTTL,
		now:         time.Now,
	}
}

// SetAuthor sets the name attached to published updates and presence.
func (a *RedisAdapter) SetAuthor(author string) {
	a.author = author
}

// SetPresenceTTL sets how long a heartbeat keeps an operator listed.
func (a *RedisAdapter) SetPresenceTTL(ttl time.Duration) {
	a.presenceTTL = ttl
}

// SetClock replaces the time source, for tests.
func (a *RedisAdapter) SetClock(now func() time.Time) {
	a.now = now
}

func (a *RedisAdapter) key(kind messages.KeyKind) string {
	return a.keys.BuildKey(kind, nil)
}

func (a *RedisAdapter) LoadBlocks(ctx context.Context) ([]sheet.Block, error) {
	data, err := a.client.Get(ctx, a.key(messages.KeyBlocks)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}
	var blocks []sheet.Block
	if err := json.Unmarshal([]byte(data), &blocks); err != nil {
		return nil, fmt.Errorf("unmarshal blocks: %w", err)
	}
	return blocks, nil
}

func (a *RedisAdapter) PushBlocks(ctx context.Context, blocks []sheet.Block) error {
	data, err := json.Marshal(blocks)
	if err != nil {
		return fmt.Errorf("marshal blocks: %w", err)
	}
	if err := a.client.Set(ctx, a.key(messages.KeyBlocks), data, 0).Err(); err != nil {
		return fmt.Errorf("push blocks: %w", err)
	}
	log.Debug("Pushed blocks", "session", a.keys.Session(), "count", len(blocks))
	return a.publish(ctx, messages.MsgBlocksPushed, "")
}

func (a *RedisAdapter) LoadEditLedger(ctx context.Context) (sheet.LedgerSnapshot, error) {
	fields, err := a.client.HGetAll(ctx, a.key(messages.KeyEdits)).Result()
	if err != nil {
		return nil, fmt.Errorf("load edits: %w", err)
	}
	ledger := make(sheet.LedgerSnapshot)
	for hashField, data := range fields {
		itemKey, field, ok := a.keys.SplitEditField(hashField)
		if !ok {
			log.Warn("Skipping malformed edit field", "field", hashField)
			continue
		}
		var record sheet.EditRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			log.Warn("Skipping unreadable edit", "field", hashField, "error", err)
			continue
		}
		key := sheet.ItemKey(itemKey)
		if ledger[key] == nil {
			ledger[key] = make(map[sheet.EditField]sheet.EditRecord)
		}
		ledger[key][sheet.EditField(field)] = record
	}
	return ledger, nil
}

func (a *RedisAdapter) RecordEdit(ctx context.Context, key sheet.ItemKey, record sheet.EditRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal edit: %w", err)
	}
	field := a.keys.BuildEditField(string(key), string(record.Field))
	if err := a.client.HSet(ctx, a.key(messages.KeyEdits), field, data).Err(); err != nil {
		return fmt.Errorf("record edit: %w", err)
	}
	return a.publish(ctx, messages.MsgEditRecorded, string(key))
}

func (a *RedisAdapter) LoadResolutions(ctx context.Context) (map[sheet.ItemKey]sheet.Resolution, error) {
	fields, err := a.client.HGetAll(ctx, a.key(messages.KeyResolutions)).Result()
	if err != nil {
		return nil, fmt.Errorf("load resolutions: %w", err)
	}
	resolutions := make(map[sheet.ItemKey]sheet.Resolution, len(fields))
	for key, data := range fields {
		var resolution sheet.Resolution
		if err := json.Unmarshal([]byte(data), &resolution); err != nil {
			log.Warn("Skipping unreadable resolution", "key", key, "error", err)
			continue
		}
		resolutions[sheet.ItemKey(key)] = resolution
	}
	return resolutions, nil
}

func (a *RedisAdapter) RecordResolution(ctx context.Context, key sheet.ItemKey, resolution sheet.Resolution) error {
	data, err := json.Marshal(resolution)
	if err != nil {
		return fmt.Errorf("marshal resolution: %w", err)
	}
	if err := a.client.HSet(ctx, a.key(messages.KeyResolutions), string(key), data).Err(); err != nil {
		return fmt.Errorf("record resolution: %w", err)
	}
	return a.publish(ctx, messages.MsgResolutionRecorded, string(key))
}

func (a *RedisAdapter) ClearResolutions(ctx context.Context) error {
	if err := a.client.Del(ctx, a.key(messages.KeyResolutions)).Err(); err != nil {
		return fmt.Errorf("clear resolutions: %w", err)
	}
	return a.publish(ctx, messages.MsgResolutionsCleared, "")
}

func (a *RedisAdapter) IsLocked(ctx context.Context) (bool, error) {
	n, err := a.client.Exists(ctx, a.key(messages.KeyLock)).Result()
	if err != nil {
		return false, fmt.Errorf("read lock: %w", err)
	}
	return n > 0, nil
}

// SetLock sets or clears the session lock. The lock is owned by whoever
// finalizes the sheet; this adapter only relays it.
func (a *RedisAdapter) SetLock(ctx context.Context, locked bool) error {
	var err error
	if locked {
		err = a.client.Set(ctx, a.key(messages.KeyLock), a.author, 0).Err()
	} else {
		err = a.client.Del(ctx, a.key(messages.KeyLock)).Err()
	}
	if err != nil {
		return fmt.Errorf("set lock: %w", err)
	}
	return a.publish(ctx, messages.MsgLockChanged, "")
}

// Heartbeat marks the adapter's author as editing the session now.
func (a *RedisAdapter) Heartbeat(ctx context.Context) error {
	if a.author == "" {
		return fmt.Errorf("heartbeat: no author set")
	}
	stamp := strconv.FormatInt(a.now().Unix(), 10)
	if err := a.client.HSet(ctx, a.key(messages.KeyPresence), a.author, stamp).Err(); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// Leave removes the adapter's author from the session's editors.
func (a *RedisAdapter) Leave(ctx context.Context) error {
	if a.author == "" {
		return nil
	}
	if err := a.client.HDel(ctx, a.key(messages.KeyPresence), a.author).Err(); err != nil {
		return fmt.Errorf("leave session: %w", err)
	}
	return a.publish(ctx, messages.MsgPresenceChanged, "")
}

// EditingUsers lists operators whose last heartbeat is within the presence TTL.
func (a *RedisAdapter) EditingUsers(ctx context.Context) ([]string, error) {
	entries, err := a.client.HGetAll(ctx, a.key(messages.KeyPresence)).Result()
	if err != nil {
		return nil, fmt.Errorf("load presence: %w", err)
	}
	cutoff := a.now().Add(-a.presenceTTL).Unix()
	users := make([]string, 0, len(entries))
	for user, stamp := range entries {
		seen, err := strconv.ParseInt(stamp, 10, 64)
		if err != nil || seen < cutoff {
			continue
		}
		users = append(users, user)
	}
	sort.Strings(users)
	return users, nil
}

// PublishUpstreamMoved tells collaborators the upstream orders changed.
func (a *RedisAdapter) PublishUpstreamMoved(ctx context.Context) error {
	return a.publish(ctx, messages.MsgUpstreamOrdersMoved, "")
}

func (a *RedisAdapter) publish(ctx context.Context, msgType messages.MessageType, itemKey string) error {
	payload, err := messages.Update{
		Type:    msgType,
		Session: a.keys.Session(),
		Key:     itemKey,
		Author:  a.author,
		Origin:  a.origin,
	}.Encode()
	if err != nil {
		return err
	}
	if err := a.client.Publish(ctx, a.key(messages.KeyUpdates), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", msgType, err)
	}
	return nil
}

// Subscribe delivers updates published by other connections to handler
// until ctx is cancelled. Updates this adapter published are dropped.
func (a *RedisAdapter) Subscribe(ctx context.Context, handler func(messages.Update)) error {
	pubsub := a.client.Subscribe(ctx, a.key(messages.KeyUpdates))
	defer pubsub.Close()

	// Wait for the subscription to be confirmed so no update is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Debug("Subscribed to session updates", "session", a.keys.Session())

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			update, err := messages.DecodeUpdate(msg.Payload)
			if err != nil {
				log.Warn("Ignoring malformed update", "error", err)
				continue
			}
			if update.Origin == a.origin {
				continue
			}
			handler(update)
		}
	}
}

// Close closes the Redis connection.
func (a *RedisAdapter) Close() error {
	return a.client.Close()
}

// Ping checks if Redis is reachable.
func (a *RedisAdapter) Ping(ctx context.Context) error {
	return a.client.Ping(ctx).Err()
}
