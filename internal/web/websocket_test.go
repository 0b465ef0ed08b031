package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hubClients(h *Hub) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func receive(t *testing.T, ch <-chan []byte) ([]byte, bool) {
	t.Helper()
	select {
	case msg, ok := <-ch:
		return msg, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for client channel")
		return nil, false
	}
}

// TestHub_PublishFansOutToEveryClient는 테스트 코드 동작을 검증하거나 보조합니다.
func TestHub_PublishFansOutToEveryClient(t *testing.T) {
	// 발행된 이벤트는 등록된 모든 클라이언트에 같은 내용으로 전달되어야 한다.
	h := startHub(t)
	a := &Client{hub: h, send: make(chan []byte, 1)}
	b := &Client{hub: h, send: make(chan []byte, 1)}
	h.register <- a
	h.register <- b
	require.Eventually(t, func() bool { return hubClients(h) == 2 }, time.Second, 5*time.Millisecond)

	h.Publish([]byte(`{"type":"action"}`))

	for _, c := range []*Client{a, b} {
		msg, ok := receive(t, c.send)
		require.True(t, ok)
		assert.JSONEq(t, `{"type":"action"}`, string(msg))
	}
}

// TestHub_UnregisterClosesClient는 테스트 코드 동작을 검증하거나 보조합니다.
func TestHub_UnregisterClosesClient(t *testing.T) {
	h := startHub(t)
	c := &Client{hub: h, send: make(chan []byte, 1)}
	h.register <- c
	h.unregister <- c

	require.Eventually(t, func() bool { return hubClients(h) == 0 }, time.Second, 5*time.Millisecond)
	_, ok := receive(t, c.send)
	assert.False(t, ok)
}

// TestHub_DropsSlowClient는 테스트 코드 동작을 검증하거나 보조합니다.
func TestHub_DropsSlowClient(t *testing.T) {
	// 버퍼가 찬 클라이언트는 제거되고 다른 클라이언트는 계속 이벤트를 받아야 한다.
	h := startHub(t)
	slow := &Client{hub: h, send: make(chan []byte)}
	fast := &Client{hub: h, send: make(chan []byte, 4)}
	h.register <- slow
	h.register <- fast

	h.Publish([]byte("first"))
	require.Eventually(t, func() bool { return hubClients(h) == 1 }, time.Second, 5*time.Millisecond)

	msg, ok := receive(t, fast.send)
	require.True(t, ok)
	assert.Equal(t, "first", string(msg))
}

// TestHub_StopClosesClientsAndUnblocksPublish는 테스트 코드 동작을 검증하거나 보조합니다.
func TestHub_StopClosesClientsAndUnblocksPublish(t *testing.T) {
	h := NewHub()
	runDone := make(chan struct{})
	go func() {
		h.Run()
		close(runDone)
	}()
	c := &Client{hub: h, send: make(chan []byte, 1)}
	h.register <- c

	h.Stop()
	h.Stop()

	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
	_, ok := receive(t, c.send)
	assert.False(t, ok)

	for i := 0; i < cap(h.broadcast)+1; i++ {
		h.Publish([]byte("late"))
	}
}

// TestHandleWebSocket_RejectsPlainRequest는 테스트 코드 동작을 검증하거나 보조합니다.
func TestHandleWebSocket_RejectsPlainRequest(t *testing.T) {
	// websocket 헤더가 없는 요청은 업그레이드되지 않고 클라이언트도 등록되지 않아야 한다.
	s := NewServer(nil, nil, nil)
	t.Cleanup(s.Close)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/ws", nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 0, hubClients(s.hub))
}
