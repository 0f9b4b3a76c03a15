package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"lead-dashboard/internal/domain"
)

const (
	messagePattern = "message:*"
	rowPattern     = "dashboard_dados:*"
	scanBatch      = 1000

	fieldPhoneNumber = "phoneNumber"
	fieldCreatedAt   = "createdAt"

	selectedTrue  = "True"
	selectedFalse = "False"
)

// Analysis kinds cached under analise:<kind>:<key>.
const (
	AnalysisSummary        = "resumo"
	AnalysisDate           = "data"
	AnalysisName           = "nome"
	AnalysisClassification = "classificacao"
)

// redisAPI is the minimal Redis command set required by Gateway.
// redis.UniversalClient from go-redis satisfies this interface.
type redisAPI interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

// Gateway is the key-value store access layer for raw conversations, thread
// ids, analysis results and selection flags.
type Gateway struct {
	api redisAPI
}

// NewGateway creates a Gateway over the given Redis client.
func NewGateway(api redisAPI) (*Gateway, error) {
	if api == nil {
		return nil, errors.New("repository: redis client must not be nil")
	}
	return &Gateway{api: api}, nil
}

// RedisOptions configures NewRedisClient.
type RedisOptions struct {
	URL      string
	Addrs    []string
	Password string
	DB       int
}

// NewRedisClient builds a universal client from either a redis:// URL or a
// list of addresses. A single address yields a plain client; several yield a
// cluster client.
func NewRedisClient(opts RedisOptions) (redis.UniversalClient, error) {
	if u := strings.TrimSpace(opts.URL); u != "" {
		parsed, err := redis.ParseURL(u)
		if err != nil {
			return nil, fmt.Errorf("repository: parse redis url: %w", err)
		}
		if opts.Password != "" {
			parsed.Password = opts.Password
		}
		return redis.NewClient(parsed), nil
	}
	if len(opts.Addrs) == 0 {
		return nil, errors.New("repository: redis address is required")
	}
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        opts.Addrs,
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}), nil
}

func threadKey(key string) string { return "threadId:" + key }
func conversationKey(key, thread string) string { return "conversation:" + key + ":" + thread }
func analysisKey(kind, key string) string { return "analise:" + kind + ":" + key }
func rowKey(key string) string { return "dashboard_dados:" + key }
func checkKey(key string) string { return "check:" + key }

// Ping verifies the store is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	if err := g.api.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("repository: Ping: %w", err)
	}
	return nil
}

// ScanKeys returns every key matching pattern, draining the cursor completely.
func (g *Gateway) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	for {
		keys, next, err := g.api.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("repository: ScanKeys %q: %w", pattern, err)
		}
		out = append(out, keys...)
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

// Get returns the value at key and false when the key does not exist.
func (g *Gateway) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := g.api.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("repository: Get %q: %w", key, err)
	}
	return v, true, nil
}

// Set stores value at key without expiry.
func (g *Gateway) Set(ctx context.Context, key, value string) error {
	if err := g.api.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("repository: Set %q: %w", key, err)
	}
	return nil
}

// KnownNumbers reads every message:* hash and returns each raw phone number
// with the newest createdAt seen for it, newest first. Ties keep the order in
// which the numbers were first encountered. Records without a phone number or
// with a non-numeric createdAt are skipped.
func (g *Gateway) KnownNumbers(ctx context.Context) ([]domain.KnownNumber, error) {
	keys, err := g.ScanKeys(ctx, messagePattern)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var numbers []domain.KnownNumber
	for _, key := range keys {
		fields, err := g.api.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("repository: KnownNumbers hgetall %q: %w", key, err)
		}
		phone := fields[fieldPhoneNumber]
		rawTS, ok := fields[fieldCreatedAt]
		if phone == "" || !ok {
			continue
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(rawTS), 10, 64)
		if err != nil {
			continue
		}
		if i, seen := index[phone]; seen {
			if ts > numbers[i].LatestAt {
				numbers[i].LatestAt = ts
			}
			continue
		}
		index[phone] = len(numbers)
		numbers = append(numbers, domain.KnownNumber{Phone: phone, LatestAt: ts})
	}

	sort.SliceStable(numbers, func(i, j int) bool {
		return numbers[i].LatestAt > numbers[j].LatestAt
	})
	return numbers, nil
}

// ThreadID returns the current thread id for a conversation key, or "" when
// the conversation has none.
func (g *Gateway) ThreadID(ctx context.Context, key string) (string, error) {
	v, _, err := g.Get(ctx, threadKey(key))
	if err != nil {
		return "", fmt.Errorf("repository: ThreadID: %w", err)
	}
	return v, nil
}

// Conversation returns the ordered message list of (key, thread). Entries that
// are not valid JSON messages are skipped.
func (g *Gateway) Conversation(ctx context.Context, key, thread string) ([]domain.ChatMessage, error) {
	raw, err := g.api.LRange(ctx, conversationKey(key, thread), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("repository: Conversation lrange: %w", err)
	}
	msgs := make([]domain.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var m domain.ChatMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// SaveAnalysis stores one analyzer output under analise:<kind>:<key>.
func (g *Gateway) SaveAnalysis(ctx context.Context, key, kind, value string) error {
	if err := g.Set(ctx, analysisKey(kind, key), value); err != nil {
		return fmt.Errorf("repository: SaveAnalysis: %w", err)
	}
	return nil
}

// SaveRow persists one analysis row as JSON under dashboard_dados:<key>.
func (g *Gateway) SaveRow(ctx context.Context, row domain.AnalysisRow) error {
	if row.Phone == "" {
		return errors.New("repository: SaveRow: phone is required")
	}
	b, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("repository: SaveRow marshal: %w", err)
	}
	if err := g.Set(ctx, rowKey(row.Phone), string(b)); err != nil {
		return fmt.Errorf("repository: SaveRow: %w", err)
	}
	return nil
}

// LoadRows returns every persisted analysis row in scan order.
func (g *Gateway) LoadRows(ctx context.Context) ([]domain.AnalysisRow, error) {
	keys, err := g.ScanKeys(ctx, rowPattern)
	if err != nil {
		return nil, err
	}
	rows := make([]domain.AnalysisRow, 0, len(keys))
	for _, key := range keys {
		v, ok, err := g.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("repository: LoadRows: %w", err)
		}
		if !ok || v == "" {
			continue
		}
		var row domain.AnalysisRow
		if err := json.Unmarshal([]byte(v), &row); err != nil {
			return nil, fmt.Errorf("repository: LoadRows decode %q: %w", key, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// SaveSelection stores the selection flag for a conversation key.
func (g *Gateway) SaveSelection(ctx context.Context, key string, selected bool) error {
	v := selectedFalse
	if selected {
		v = selectedTrue
	}
	if err := g.Set(ctx, checkKey(key), v); err != nil {
		return fmt.Errorf("repository: SaveSelection: %w", err)
	}
	return nil
}

// Selections returns the stored selection flag for each key that has one.
func (g *Gateway) Selections(ctx context.Context, keys []string) (map[string]bool, error) {
	out := make(map[string]bool, len(keys))
	for _, key := range keys {
		v, ok, err := g.Get(ctx, checkKey(key))
		if err != nil {
			return nil, fmt.Errorf("repository: Selections: %w", err)
		}
		if !ok || v == "" {
			continue
		}
		out[key] = strings.EqualFold(v, selectedTrue)
	}
	return out, nil
}
