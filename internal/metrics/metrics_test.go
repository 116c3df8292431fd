package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zai11/enclave/internal/events"
	"github.com/zai11/enclave/internal/wire"
)

var errBoom = errors.New("boom")

func wireFriendRequest() wire.FriendRequest {
	return wire.FriendRequest{FromPeerID: "peerA", FromMultiaddr: "/fake/peerA", Message: "hi"}
}

func TestObserveConnectedPeersGauge(t *testing.T) {
	c := New()
	c.Observe(events.NewPeerConnected("peerA"))
	c.Observe(events.NewPeerConnected("peerB"))
	c.Observe(events.NewPeerDisconnected("peerA"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "enclave_connected_peers 1") {
		t.Fatalf("expected connected_peers gauge at 1, got body:\n%s", body)
	}
}

func TestObserveFriendRequestCounters(t *testing.T) {
	c := New()
	c.Observe(events.NewFriendRequestReceived("peerA", wireFriendRequest()))
	c.Observe(events.NewFriendRequestAccepted("peerA"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "enclave_friend_requests_received_total 1") {
		t.Fatalf("expected friend_requests_received_total at 1, got body:\n%s", body)
	}
	if !strings.Contains(body, "enclave_friend_requests_accepted_total 1") {
		t.Fatalf("expected friend_requests_accepted_total at 1, got body:\n%s", body)
	}
}

func TestObserveLoopErrorsLabelled(t *testing.T) {
	c := New()
	c.Observe(events.NewError("dial_for_friend_request", errBoom))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `enclave_loop_errors_total{context="dial_for_friend_request"} 1`) {
		t.Fatalf("expected labelled loop_errors_total, got body:\n%s", body)
	}
}
