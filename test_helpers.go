package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go-liveness-verifier/challenge"
	"go-liveness-verifier/models"
	"go-liveness-verifier/verification"

	"github.com/stretchr/testify/require"
)

var testConfig = ServerConfig{
	Host:           "localhost",
	Port:           8081,
	UseTls:         false,
	TlsCertPath:    "",
	TlsPrivKeyPath: "",
}

// testClock is a settable clock shared by the generator and the server.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	baseURL string
	storage *InMemorySessionStorage
	clock   *testClock
	audit   *fakeAuditClient
}

func startTestServer(t *testing.T) *testEnv {
	t.Helper()
	return startTestServerWithConfig(t, testConfig, 42)
}

func startTestServerWithConfig(t *testing.T, config ServerConfig, seed int64) *testEnv {
	t.Helper()

	clock := &testClock{now: time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)}
	source := challenge.NewLockedSource(seed)
	engine, err := verification.NewEngine(verification.DefaultConfig(), source)
	require.NoError(t, err)

	storage := NewInMemorySessionStorage()
	audit := &fakeAuditClient{}
	testState := &ServerState{
		generator:      challenge.NewGenerator(challenge.WithClock(clock.Now), challenge.WithSource(source)),
		engine:         engine,
		sessionStorage: storage,
		auditClient:    audit,
		now:            clock.Now,
	}

	srv, err := NewServer(testState, config)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{baseURL: ts.URL, storage: storage, clock: clock, audit: audit}
}

func postJSON[T any](t *testing.T, url string, payload any) (*http.Response, []byte, *T) {
	t.Helper()

	var body io.Reader = http.NoBody
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(b)
	}
	resp, err := http.Post(url, "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var v T
	_ = json.Unmarshal(respBody, &v)

	return resp, respBody, &v
}

func mustStatus(t *testing.T, resp *http.Response, want int, body []byte) {
	t.Helper()
	require.Equalf(t, want, resp.StatusCode, "body: %s", body)
}

// start-challenge bootstrap
func startChallenge(t *testing.T, env *testEnv) models.StartChallengeResponse {
	t.Helper()
	resp, body, sr := postJSON[models.StartChallengeResponse](t, env.baseURL+"/api/start-challenge", nil)
	mustStatus(t, resp, http.StatusOK, body)
	require.NotEmpty(t, sr.ChallengeId)
	return *sr
}

// compliantFrames returns n frames that satisfy gesture and expression in
// every frame, with a live eye signal.
func compliantFrames(gesture challenge.Gesture, expression challenge.Expression, n int) []models.Landmarks {
	frames := make([]models.Landmarks, 0, n)
	for i := 0; i < n; i++ {
		l := neutralSnapshot(i)
		l.EyeRatio = 0.02 + float64(i%2)*0.01
		switch gesture {
		case challenge.GestureLeftHandRaised:
			l.LeftHandY = 0.3
		case challenge.GestureRightHandRaised:
			l.RightHandY = 0.3
		case challenge.GestureTouchNose:
			l.HandNoseDist = 0.05
		}
		switch expression {
		case challenge.ExpressionSmile:
			l.MouthWidth = 0.6
		case challenge.ExpressionFrown:
			l.BrowDistance = 0.05
		case challenge.ExpressionBlink:
			if i%2 == 0 {
				l.EyeRatio = 0.008
			} else {
				l.EyeRatio = 0.014
			}
		}
		frames = append(frames, models.LandmarksFromSnapshot(l))
	}
	return frames
}

// staticFrames never satisfy anything and have a frozen eye signal.
func staticFrames(n int) []models.Landmarks {
	frames := make([]models.Landmarks, 0, n)
	for i := 0; i < n; i++ {
		frames = append(frames, models.LandmarksFromSnapshot(neutralSnapshot(i)))
	}
	return frames
}

func neutralSnapshot(i int) verification.LandmarkSnapshot {
	return verification.LandmarkSnapshot{
		LeftHandY:    verification.HandNotDetected,
		RightHandY:   verification.HandNotDetected,
		ShoulderY:    0.6,
		MouthWidth:   0.3,
		BrowDistance: 0.2,
		HandNoseDist: 0.5,
		EyeRatio:     0.03,
		Timestamp:    time.UnixMilli(int64(1742032800000 + i*33)).UTC(),
	}
}

func ptr[T any](v T) *T { return &v }

// test doubles

type fakeAuditClient struct {
	mu      sync.Mutex
	records []models.AuditRecord
	err     error
}

func (f *fakeAuditClient) RecordVerification(_ context.Context, record models.AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return f.err
}

func (f *fakeAuditClient) HealthCheck(_ context.Context) error {
	return nil
}

func (f *fakeAuditClient) Records() []models.AuditRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.AuditRecord(nil), f.records...)
}
