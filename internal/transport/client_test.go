package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSend_Success(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"SM123"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 0, nil)
	id, err := c.Send(context.Background(), Message{From: "+15550000", To: "+15551234", Body: "Tracked: AAPL"})
	require.NoError(t, err)

	assert.Equal(t, "SM123", id)
	assert.Equal(t, "+15551234", got.To)
	assert.Equal(t, "Tracked: AAPL", got.Body)
}

func TestClientSend_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":21211,"message":"Invalid 'To' Phone Number"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 0, nil)
	_, err := c.Send(context.Background(), Message{To: "bogus", Body: "hi"})
	require.Error(t, err)

	var terr *Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusBadRequest, terr.Status)
	assert.Equal(t, "21211", terr.Code)
	assert.Equal(t, "Invalid 'To' Phone Number", terr.Message)
}

func TestClientSend_UnstructuredFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 0, nil)
	_, err := c.Send(context.Background(), Message{To: "a@example.com", Body: "hi"})

	var terr *Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusBadGateway, terr.Status)
	assert.Empty(t, terr.Code)
	assert.Contains(t, terr.Message, "upstream down")
}

func TestClientSend_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, "secret", 0, nil)
	_, err := c.Send(context.Background(), Message{To: "a@example.com", Body: "hi"})

	var terr *Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, 0, terr.Status)
}

func TestLogClientSend(t *testing.T) {
	c := NewLogClient("email", nil)
	id, err := c.Send(context.Background(), Message{To: "a@example.com", Body: "hi"})
	require.NoError(t, err)
	assert.Contains(t, id, "log-")
}
