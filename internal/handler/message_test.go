package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	return resp
}

func TestMessagePostValidation(t *testing.T) {
	h := NewMessageHandler(nil)
	server := httptest.NewServer(h.Routes())
	defer server.Close()

	t.Run("malformed body", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/", "{not json")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing visitor id", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/", `{"text":"hello"}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing text", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/", `{"visitorId":"v-1"}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("blank text rejected", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/", `{"visitorId":"v-1","text":"   "}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("oversized text rejected", func(t *testing.T) {
		long := strings.Repeat("a", maxMessageLength+1)
		resp := postJSON(t, server.URL+"/", `{"visitorId":"v-1","text":"`+long+`"}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAgentTurnValidation(t *testing.T) {
	h := NewMessageHandler(nil)
	server := httptest.NewServer(h.Routes())
	defer server.Close()

	t.Run("malformed body", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/v-1/agent", "{not json")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("blank text rejected", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/v-1/agent", `{"text":"  "}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("oversized text rejected", func(t *testing.T) {
		long := strings.Repeat("a", maxMessageLength+1)
		resp := postJSON(t, server.URL+"/v-1/agent", `{"text":"`+long+`"}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
