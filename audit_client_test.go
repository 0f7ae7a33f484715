package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go-liveness-verifier/models"

	"github.com/stretchr/testify/require"
)

func TestHttpAuditClient_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/healthz", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHttpAuditClient(server.URL)
	require.NoError(t, client.HealthCheck(context.Background()))
}

func TestHttpAuditClient_HealthCheck_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down for maintenance"))
	}))
	defer server.Close()

	err := NewHttpAuditClient(server.URL).HealthCheck(context.Background())
	require.ErrorContains(t, err, "status 503")
	require.ErrorContains(t, err, "down for maintenance")
}

func TestHttpAuditClient_RecordVerification(t *testing.T) {
	var received models.AuditRecord
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/audit/verifications", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	record := models.AuditRecord{
		ChallengeId: "ABC123",
		Gesture:     "touch-nose",
		Expression:  "blink",
		FrameCount:  20,
		Success:     true,
		Score:       100,
		TokenIssued: true,
		Reasons:     []string{"g", "e", "l", "all factors validated"},
		VerifiedAt:  time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC),
	}

	err := NewHttpAuditClient(server.URL).RecordVerification(context.Background(), record)
	require.NoError(t, err)
	require.Equal(t, record, received)
}

func TestHttpAuditClient_RecordVerification_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid record"))
	}))
	defer server.Close()

	err := NewHttpAuditClient(server.URL).RecordVerification(context.Background(), models.AuditRecord{ChallengeId: "X"})
	require.ErrorContains(t, err, "status 400")
}

func TestHttpAuditClient_RecordVerification_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewHttpAuditClient(server.URL).RecordVerification(ctx, models.AuditRecord{ChallengeId: "X"})
	require.ErrorContains(t, err, "failed to execute audit request")
}

func TestNewHttpAuditClient(t *testing.T) {
	baseURL := "http://localhost:41101"
	client := NewHttpAuditClient(baseURL)

	require.NotNil(t, client)
	require.Equal(t, baseURL, client.baseURL)
	require.NotNil(t, client.httpClient)
}
