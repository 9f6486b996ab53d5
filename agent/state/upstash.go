package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
)

const (
	defaultStoreKeyPrefix = "policypilot:thread:"
	defaultStoreTTL       = 24 * time.Hour
	maxResponseSizeBytes  = 2 << 20
	defaultHistoryPage    = 100

	fieldNextRoute = "next_route"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

// StoreOption customizes UpstashRedisStore.
type StoreOption func(*UpstashRedisStore)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *UpstashRedisStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) StoreOption {
	return func(s *UpstashRedisStore) {
		s.ttl = ttl
	}
}

// WithHistoryPageSize sets how many messages one LRANGE window reads.
func WithHistoryPageSize(n int) StoreOption {
	return func(s *UpstashRedisStore) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *UpstashRedisStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// UpstashRedisStore keeps each thread as a Redis list of messages plus a
// metadata hash, talking to Upstash over its REST API.
type UpstashRedisStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
	pageSize   int
	now        func() time.Time
}

// ErrResponseTooLarge means a single REST reply exceeded the read limit.
var ErrResponseTooLarge = fmt.Errorf("redis response exceeds %d bytes", maxResponseSizeBytes)

var _ Store = (*UpstashRedisStore)(nil)

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	TTL     time.Duration `envconfig:"TTL" split_words:"true" default:"24h"`
}

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashRedisStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = defaultStoreTTL
	}

	store := &UpstashRedisStore{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		keyPrefix:  defaultStoreKeyPrefix,
		ttl:        ttl,
		pageSize:   defaultHistoryPage,
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	if store.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}

	return store, nil
}

func (s *UpstashRedisStore) Get(ctx context.Context, threadID string) (*ConversationState, error) {
	id, err := validateThread(threadID)
	if err != nil {
		return nil, err
	}
	msgKey, metaKey := s.keys(id)

	results, err := s.batch(ctx, "/pipeline", [][]any{
		{"LRANGE", msgKey, 0, s.pageSize - 1},
		{"HGETALL", metaKey},
	})
	if err != nil {
		return nil, err
	}

	var rawMessages []string
	if err := decodeResult(results[0], &rawMessages); err != nil {
		return nil, fmt.Errorf("decode thread messages: %w", err)
	}
	var flatMeta []string
	if err := decodeResult(results[1], &flatMeta); err != nil {
		return nil, fmt.Errorf("decode thread metadata: %w", err)
	}

	// The history only grows, so it is read in fixed windows to keep every
	// reply under the response limit.
	for last := rawMessages; len(last) == s.pageSize; {
		start := len(rawMessages)
		res, err := s.exec(ctx, []any{"LRANGE", msgKey, start, start + s.pageSize - 1})
		if err != nil {
			return nil, err
		}
		last = nil
		if err := decodeResult(*res, &last); err != nil {
			return nil, fmt.Errorf("decode thread messages: %w", err)
		}
		rawMessages = append(rawMessages, last...)
	}

	if len(rawMessages) == 0 && len(flatMeta) == 0 {
		return NewConversationState(id, s.now()), nil
	}

	st := NewConversationState(id, s.now())
	for _, raw := range rawMessages {
		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal stored message: %w", err)
		}
		st.Messages = append(st.Messages, rec.message())
	}

	meta := make(map[string]string, len(flatMeta)/2)
	for i := 0; i+1 < len(flatMeta); i += 2 {
		meta[flatMeta[i]] = flatMeta[i+1]
	}
	st.NextRoute = contractx.RouteLabel(meta[fieldNextRoute])
	if ts, err := time.Parse(time.RFC3339Nano, meta[fieldCreatedAt]); err == nil {
		st.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, meta[fieldUpdatedAt]); err == nil {
		st.UpdatedAt = ts
	}
	return st, nil
}

// Append writes messages, route and timestamps in one MULTI/EXEC
// transaction so a reader never sees half a turn.
func (s *UpstashRedisStore) Append(ctx context.Context, threadID string, route contractx.RouteLabel, msgs ...*schema.Message) error {
	id, err := validateThread(threadID)
	if err != nil {
		return err
	}
	records, err := toRecords(msgs)
	if err != nil {
		return err
	}
	msgKey, metaKey := s.keys(id)
	now := s.now().UTC().Format(time.RFC3339Nano)

	var cmds [][]any
	if len(records) > 0 {
		push := []any{"RPUSH", msgKey}
		for _, rec := range records {
			payload, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal message: %w", err)
			}
			push = append(push, string(payload))
		}
		cmds = append(cmds, push)
	}
	cmds = append(cmds, []any{"HSETNX", metaKey, fieldCreatedAt, now})
	set := []any{"HSET", metaKey, fieldUpdatedAt, now}
	if route != "" {
		set = append(set, fieldNextRoute, string(route))
	}
	cmds = append(cmds, set)
	if s.ttl > 0 {
		secs := ttlSeconds(s.ttl)
		cmds = append(cmds,
			[]any{"EXPIRE", msgKey, secs},
			[]any{"EXPIRE", metaKey, secs},
		)
	}

	_, err = s.batch(ctx, "/multi-exec", cmds)
	return err
}

func (s *UpstashRedisStore) Delete(ctx context.Context, threadID string) error {
	id, err := validateThread(threadID)
	if err != nil {
		return err
	}
	msgKey, metaKey := s.keys(id)
	_, err = s.exec(ctx, []any{"DEL", msgKey, metaKey})
	return err
}

func (s *UpstashRedisStore) keys(threadID string) (messages, meta string) {
	base := s.keyPrefix + threadID
	return base + ":messages", base + ":meta"
}

func (s *UpstashRedisStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	raw, err := s.post(ctx, "", command)
	if err != nil {
		return nil, err
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

// batch sends commands to the pipeline or multi-exec endpoint and returns
// one result per command.
func (s *UpstashRedisStore) batch(ctx context.Context, path string, commands [][]any) ([]redisRESTResponse, error) {
	raw, err := s.post(ctx, path, commands)
	if err != nil {
		return nil, err
	}

	var parsed []redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		// A rejected transaction comes back as a single error object.
		var single redisRESTResponse
		if jerr := json.Unmarshal(raw, &single); jerr == nil && single.Error != "" {
			return nil, errors.New(single.Error)
		}
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if len(parsed) != len(commands) {
		return nil, fmt.Errorf("redis returned %d results for %d commands", len(parsed), len(commands))
	}
	for i, r := range parsed {
		if r.Error != "" {
			return nil, fmt.Errorf("redis command %v: %s", commands[i][0], r.Error)
		}
	}
	return parsed, nil
}

func (s *UpstashRedisStore) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}
	if len(raw) > maxResponseSizeBytes {
		return nil, ErrResponseTooLarge
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

func decodeResult(r redisRESTResponse, out any) error {
	result := bytes.TrimSpace(r.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil
	}
	return json.Unmarshal(result, out)
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
