package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	redisclient "github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/redis"
	"github.com/redis/go-redis/v9"
)

// beginScript mirrors Decide. Times are unix milliseconds.
var beginScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
local lease = tonumber(ARGV[3])

local status = redis.call('HGET', key, 'status')
if not status then
  redis.call('HSET', key, 'status', 'in_progress', 'attempts', 1, 'updated_at', now)
  return {'admitted', 'in_progress', 1, now}
end

local attempts = tonumber(redis.call('HGET', key, 'attempts'))
local updated = tonumber(redis.call('HGET', key, 'updated_at'))

if status == 'completed' then
  return {'already_completed', status, attempts, updated}
end

if status == 'in_progress' then
  if lease <= 0 or now - updated < lease then
    return {'already_in_progress', status, attempts, updated}
  end
  if attempts >= max then
    redis.call('HSET', key, 'status', 'failed', 'updated_at', now)
    return {'exhausted', 'failed', attempts, now}
  end
elseif attempts >= max then
  return {'exhausted', status, attempts, updated}
end

redis.call('HSET', key, 'status', 'in_progress', 'attempts', attempts + 1, 'updated_at', now)
return {'admitted', 'in_progress', attempts + 1, now}
`)

// finishScript moves attempt ARGV[3]'s in_progress entry to ARGV[1]. Any
// other state is returned untouched, tagged 'rejected'.
var finishScript = redis.NewScript(`
local key = KEYS[1]
local status = redis.call('HGET', key, 'status')
if not status then
  return false
end
local attempts = tonumber(redis.call('HGET', key, 'attempts'))
local updated = tonumber(redis.call('HGET', key, 'updated_at'))
if status ~= 'in_progress' or attempts ~= tonumber(ARGV[3]) then
  return {'rejected', status, attempts, updated}
end
redis.call('HSET', key, 'status', ARGV[1], 'updated_at', ARGV[2])
return {'', ARGV[1], attempts, tonumber(ARGV[2])}
`)

var beginResults = map[string]BeginResult{
	"admitted":            Admitted,
	"already_completed":   AlreadyCompleted,
	"already_in_progress": AlreadyInProgress,
	"exhausted":           Exhausted,
}

// Redis keeps one hash per document and runs every transition as a Lua
// script, so check-and-set is atomic across processes.
type Redis struct {
	client *redisclient.Client
	prefix string
	policy Policy
	now    func() time.Time
	logger *slog.Logger
}

func NewRedis(client *redisclient.Client, keyPrefix string, p Policy) *Redis {
	return &Redis{
		client: client,
		prefix: keyPrefix,
		policy: p,
		now:    time.Now,
		logger: slog.Default().With("component", "ledger", "backend", "redis"),
	}
}

func (r *Redis) key(documentID string) string {
	return r.prefix + documentID
}

func (r *Redis) TryBegin(ctx context.Context, documentID string) (BeginResult, Entry, error) {
	res, err := r.client.Eval(ctx, beginScript, []string{r.key(documentID)},
		r.now().UnixMilli(), r.policy.MaxAttempts, r.policy.LeaseTimeout.Milliseconds())
	if err != nil {
		return 0, Entry{}, fmt.Errorf("ledger try-begin %s: %w", documentID, err)
	}
	tag, entry, err := parseScriptReply(documentID, res)
	if err != nil {
		return 0, Entry{}, err
	}
	result, ok := beginResults[tag]
	if !ok {
		return 0, Entry{}, fmt.Errorf("ledger try-begin %s: unexpected result %q", documentID, tag)
	}
	return result, entry, nil
}

func (r *Redis) MarkCompleted(ctx context.Context, documentID string, attempt int) (Entry, error) {
	return r.finish(ctx, documentID, attempt, StatusCompleted)
}

func (r *Redis) MarkFailed(ctx context.Context, documentID string, attempt int) (Entry, error) {
	return r.finish(ctx, documentID, attempt, StatusFailed)
}

func (r *Redis) finish(ctx context.Context, documentID string, attempt int, to Status) (Entry, error) {
	res, err := r.client.Eval(ctx, finishScript, []string{r.key(documentID)}, string(to), r.now().UnixMilli(), attempt)
	if redisclient.IsNilError(err) {
		return Entry{}, unknownEntry(documentID, nil)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("ledger mark %s %s: %w", to, documentID, err)
	}
	tag, entry, err := parseScriptReply(documentID, res)
	if err != nil {
		return Entry{}, err
	}
	if tag == "rejected" {
		return Entry{}, checkOwner(&entry, documentID, attempt)
	}
	return entry, nil
}

func (r *Redis) Get(ctx context.Context, documentID string) (Entry, error) {
	fields, err := r.client.HGetAll(ctx, r.key(documentID))
	if err != nil {
		return Entry{}, fmt.Errorf("reading ledger entry %s: %w", documentID, err)
	}
	if len(fields) == 0 {
		return Entry{}, notFound(documentID)
	}
	attempts, _ := strconv.Atoi(fields["attempts"])
	updated, _ := strconv.ParseInt(fields["updated_at"], 10, 64)
	return Entry{
		DocumentID:   documentID,
		Status:       Status(fields["status"]),
		AttemptCount: attempts,
		UpdatedAt:    time.UnixMilli(updated).UTC(),
	}, nil
}

// Close is a no-op; the shared Redis client is closed by its owner.
func (r *Redis) Close() error { return nil }

func parseScriptReply(documentID string, res interface{}) (string, Entry, error) {
	parts, ok := res.([]interface{})
	if !ok || len(parts) != 4 {
		return "", Entry{}, fmt.Errorf("ledger %s: malformed script reply %v", documentID, res)
	}
	tag, _ := parts[0].(string)
	status, _ := parts[1].(string)
	attempts, _ := parts[2].(int64)
	updated, _ := parts[3].(int64)
	return tag, Entry{
		DocumentID:   documentID,
		Status:       Status(status),
		AttemptCount: int(attempts),
		UpdatedAt:    time.UnixMilli(updated).UTC(),
	}, nil
}
