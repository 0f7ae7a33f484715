package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go-liveness-verifier/challenge"
	"go-liveness-verifier/models"
	"go-liveness-verifier/verification"

	"github.com/redis/go-redis/v9"
)

// 30 fps over a 60 s window
const MaxFramesPerSession = 1800

// SessionGrace keeps a session around a little after its challenge expires so
// a late verify call still gets a "session expired" verdict instead of an
// unknown-session error.
const SessionGrace = 2 * time.Minute

const maxAppendAttempts = 64

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrFrameBufferFull = errors.New("frame buffer full")
)

// Should be safe to use in concurrency
type SessionStorage interface {
	// Stores the challenge and starts an empty frame buffer for it.
	// Storing an id that already exists replaces the challenge and
	// clears its buffer.
	StoreChallenge(c challenge.Challenge) error

	// Should return an error in any case where the challenge is not found.
	RetrieveChallenge(challengeId string) (challenge.Challenge, error)

	// Appends frames in order and returns the new buffer length.
	// Fails for unknown sessions and when the buffer would grow past
	// MaxFramesPerSession.
	AppendFrames(challengeId string, frames []verification.FrameRecord) (int, error)

	RetrieveFrames(challengeId string) ([]verification.FrameRecord, error)

	// Reads the challenge and its frames and removes the session in one
	// step. A concurrent append either lands in the returned frames or
	// fails with ErrSessionNotFound; it is never accepted and then lost.
	TakeSession(challengeId string) (challenge.Challenge, []verification.FrameRecord, error)

	// Removes the challenge and its buffer. The session not being there
	// is considered an error.
	RemoveSession(challengeId string) error
}

// ------------------------------------------------------------------------------

type memorySession struct {
	challenge challenge.Challenge
	frames    []verification.FrameRecord
}

type InMemorySessionStorage struct {
	sessions map[string]*memorySession
	mutex    sync.Mutex
}

func NewInMemorySessionStorage() *InMemorySessionStorage {
	return &InMemorySessionStorage{
		sessions: make(map[string]*memorySession),
	}
}

func (s *InMemorySessionStorage) StoreChallenge(c challenge.Challenge) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.sessions[c.ID] = &memorySession{challenge: c}
	return nil
}

func (s *InMemorySessionStorage) RetrieveChallenge(challengeId string) (challenge.Challenge, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if session, ok := s.sessions[challengeId]; ok {
		return session.challenge, nil
	}
	return challenge.Challenge{}, fmt.Errorf("%w: %s", ErrSessionNotFound, challengeId)
}

func (s *InMemorySessionStorage) AppendFrames(challengeId string, frames []verification.FrameRecord) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	session, ok := s.sessions[challengeId]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSessionNotFound, challengeId)
	}
	if len(session.frames)+len(frames) > MaxFramesPerSession {
		return len(session.frames), fmt.Errorf("%w: %s would exceed %d frames", ErrFrameBufferFull, challengeId, MaxFramesPerSession)
	}
	session.frames = append(session.frames, frames...)
	return len(session.frames), nil
}

func (s *InMemorySessionStorage) RetrieveFrames(challengeId string) ([]verification.FrameRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	session, ok := s.sessions[challengeId]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, challengeId)
	}
	frames := make([]verification.FrameRecord, len(session.frames))
	copy(frames, session.frames)
	return frames, nil
}

func (s *InMemorySessionStorage) TakeSession(challengeId string) (challenge.Challenge, []verification.FrameRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	session, ok := s.sessions[challengeId]
	if !ok {
		return challenge.Challenge{}, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, challengeId)
	}
	delete(s.sessions, challengeId)
	return session.challenge, session.frames, nil
}

func (s *InMemorySessionStorage) RemoveSession(challengeId string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.sessions[challengeId]; !ok {
		return fmt.Errorf("failed to remove session, because it wasn't there: %w: %s", ErrSessionNotFound, challengeId)
	}
	delete(s.sessions, challengeId)
	return nil
}

// ------------------------------------------------------------------------------

type RedisSessionStorage struct {
	client    *redis.Client
	namespace string
	now       func() time.Time
}

func NewRedisSessionStorage(client *redis.Client, namespace string) *RedisSessionStorage {
	return &RedisSessionStorage{client: client, namespace: namespace, now: time.Now}
}

// storedChallenge is the redis representation of a challenge
type storedChallenge struct {
	Id         string    `json:"id"`
	Gesture    string    `json:"gesture"`
	Expression string    `json:"expression"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func challengeKey(namespace, challengeId string) string {
	return fmt.Sprintf("%s:challenge:%s", namespace, challengeId)
}

func framesKey(namespace, challengeId string) string {
	return fmt.Sprintf("%s:frames:%s", namespace, challengeId)
}

func (s *RedisSessionStorage) ttl(c challenge.Challenge) time.Duration {
	ttl := c.ExpiresAt.Sub(s.now()) + SessionGrace
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

func (s *RedisSessionStorage) StoreChallenge(c challenge.Challenge) error {
	ctx := context.Background()
	payload, err := json.Marshal(storedChallenge{
		Id:         c.ID,
		Gesture:    string(c.Gesture),
		Expression: string(c.Expression),
		CreatedAt:  c.CreatedAt,
		ExpiresAt:  c.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, challengeKey(s.namespace, c.ID), payload, s.ttl(c))
		pipe.Del(ctx, framesKey(s.namespace, c.ID))
		return nil
	})
	return err
}

// stringGetter is satisfied by both *redis.Client and *redis.Tx.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisSessionStorage) getChallenge(ctx context.Context, db stringGetter, challengeId string) (challenge.Challenge, error) {
	raw, err := db.Get(ctx, challengeKey(s.namespace, challengeId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return challenge.Challenge{}, fmt.Errorf("%w: %s", ErrSessionNotFound, challengeId)
	}
	if err != nil {
		return challenge.Challenge{}, fmt.Errorf("failed to read session %s: %w", challengeId, err)
	}
	return decodeChallenge(challengeId, raw)
}

func decodeChallenge(challengeId string, raw []byte) (challenge.Challenge, error) {
	var stored storedChallenge
	if err := json.Unmarshal(raw, &stored); err != nil {
		return challenge.Challenge{}, fmt.Errorf("failed to unmarshal challenge %s: %w", challengeId, err)
	}
	return challenge.Challenge{
		ID:         stored.Id,
		Gesture:    challenge.Gesture(stored.Gesture),
		Expression: challenge.Expression(stored.Expression),
		CreatedAt:  stored.CreatedAt,
		ExpiresAt:  stored.ExpiresAt,
	}, nil
}

func encodeFrames(frames []verification.FrameRecord) ([]interface{}, error) {
	values := make([]interface{}, 0, len(frames))
	for _, f := range frames {
		b, err := json.Marshal(models.LandmarksFromSnapshot(f.Landmarks))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal frame: %w", err)
		}
		values = append(values, b)
	}
	return values, nil
}

func decodeFrames(challengeId string, raw []string) ([]verification.FrameRecord, error) {
	landmarks := make([]models.Landmarks, 0, len(raw))
	for _, item := range raw {
		var l models.Landmarks
		if err := json.Unmarshal([]byte(item), &l); err != nil {
			return nil, fmt.Errorf("failed to unmarshal frame for %s: %w", challengeId, err)
		}
		landmarks = append(landmarks, l)
	}
	return models.ToFrameRecords(landmarks), nil
}

func (s *RedisSessionStorage) RetrieveChallenge(challengeId string) (challenge.Challenge, error) {
	return s.getChallenge(context.Background(), s.client, challengeId)
}

// AppendFrames checks the cap and pushes under WATCH on both session keys,
// so concurrent appends cannot overshoot MaxFramesPerSession and an append
// racing TakeSession or RemoveSession is retried against the new state.
func (s *RedisSessionStorage) AppendFrames(challengeId string, frames []verification.FrameRecord) (int, error) {
	ctx := context.Background()
	values, err := encodeFrames(frames)
	if err != nil {
		return 0, err
	}

	cKey := challengeKey(s.namespace, challengeId)
	fKey := framesKey(s.namespace, challengeId)

	var length int
	appendTx := func(tx *redis.Tx) error {
		c, err := s.getChallenge(ctx, tx, challengeId)
		if err != nil {
			return err
		}

		current, err := tx.LLen(ctx, fKey).Result()
		if err != nil {
			return fmt.Errorf("failed to read frame buffer length: %w", err)
		}
		length = int(current)
		if length+len(frames) > MaxFramesPerSession {
			return fmt.Errorf("%w: %s would exceed %d frames", ErrFrameBufferFull, challengeId, MaxFramesPerSession)
		}
		if len(frames) == 0 {
			return nil
		}

		var pushed *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pushed = pipe.RPush(ctx, fKey, values...)
			pipe.Expire(ctx, fKey, s.ttl(c))
			return nil
		})
		if err != nil {
			return err
		}
		length = int(pushed.Val())
		return nil
	}

	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		err = s.client.Watch(ctx, appendTx, cKey, fKey)
		if errors.Is(err, redis.TxFailedErr) {
			slog.Debug("Frame append raced another writer, retrying", "challenge_id", challengeId, "attempt", attempt)
			continue
		}
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrFrameBufferFull) {
				return length, err
			}
			return length, fmt.Errorf("failed to append frames: %w", err)
		}
		return length, nil
	}
	return length, fmt.Errorf("failed to append frames for %s: gave up after %d contended attempts", challengeId, maxAppendAttempts)
}

func (s *RedisSessionStorage) RetrieveFrames(challengeId string) ([]verification.FrameRecord, error) {
	ctx := context.Background()
	exists, err := s.client.Exists(ctx, challengeKey(s.namespace, challengeId)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to look up session for %s: %w", challengeId, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, challengeId)
	}

	raw, err := s.client.LRange(ctx, framesKey(s.namespace, challengeId), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read frames for %s: %w", challengeId, err)
	}
	return decodeFrames(challengeId, raw)
}

// TakeSession reads and deletes both keys in one MULTI/EXEC.
func (s *RedisSessionStorage) TakeSession(challengeId string) (challenge.Challenge, []verification.FrameRecord, error) {
	ctx := context.Background()
	cKey := challengeKey(s.namespace, challengeId)
	fKey := framesKey(s.namespace, challengeId)

	var getChallenge *redis.StringCmd
	var getFrames *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		getChallenge = pipe.Get(ctx, cKey)
		getFrames = pipe.LRange(ctx, fKey, 0, -1)
		pipe.Del(ctx, cKey, fKey)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return challenge.Challenge{}, nil, fmt.Errorf("failed to take session %s: %w", challengeId, err)
	}

	raw, err := getChallenge.Bytes()
	if errors.Is(err, redis.Nil) {
		return challenge.Challenge{}, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, challengeId)
	}
	if err != nil {
		return challenge.Challenge{}, nil, fmt.Errorf("failed to read session %s: %w", challengeId, err)
	}
	c, err := decodeChallenge(challengeId, raw)
	if err != nil {
		return challenge.Challenge{}, nil, err
	}

	frames, err := decodeFrames(challengeId, getFrames.Val())
	if err != nil {
		return challenge.Challenge{}, nil, err
	}
	return c, frames, nil
}

func (s *RedisSessionStorage) RemoveSession(challengeId string) error {
	ctx := context.Background()
	removed, err := s.client.Del(ctx, challengeKey(s.namespace, challengeId), framesKey(s.namespace, challengeId)).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return fmt.Errorf("failed to remove session, because it wasn't there: %w: %s", ErrSessionNotFound, challengeId)
	}
	return nil
}
