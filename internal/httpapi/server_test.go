package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/meetscribe/internal/archive"
	"github.com/ent0n29/meetscribe/internal/config"
	"github.com/ent0n29/meetscribe/internal/events"
	"github.com/ent0n29/meetscribe/internal/meeting"
	"github.com/ent0n29/meetscribe/internal/record"
)

func testServer(t *testing.T) (*Server, *meeting.Store, *archive.InMemoryStore, *events.Bus) {
	t.Helper()
	store := meeting.NewStore()
	arch := archive.NewInMemoryStore()
	bus := events.NewBus()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(config.Config{}, store, arch, bus, logger)
	return srv, store, arch, bus
}

func getJSON(t *testing.T, ts *httptest.Server, path string, want int, out any) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		t.Fatalf("GET %s: status = %d, want %d", path, resp.StatusCode, want)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("GET %s: decode: %v", path, err)
		}
	}
}

func TestHealthAndReady(t *testing.T) {
	srv, store, _, _ := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var health map[string]any
	getJSON(t, ts, "/healthz", http.StatusOK, &health)
	if health["status"] != "ok" {
		t.Errorf("health status = %v, want ok", health["status"])
	}

	if _, err := store.Start("g1", "vc1", "tc1", "u1"); err != nil {
		t.Fatal(err)
	}

	var ready map[string]any
	getJSON(t, ts, "/readyz", http.StatusOK, &ready)
	if ready["active_meetings"] != float64(1) {
		t.Errorf("active_meetings = %v, want 1", ready["active_meetings"])
	}
}

func TestListAndGetMeetings(t *testing.T) {
	srv, store, _, _ := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sess, err := store.Start("g1", "vc1", "tc1", "u1")
	if err != nil {
		t.Fatal(err)
	}

	var list struct {
		Meetings []meeting.Session `json:"meetings"`
	}
	getJSON(t, ts, "/v1/meetings", http.StatusOK, &list)
	if len(list.Meetings) != 1 || list.Meetings[0].GuildID != "g1" {
		t.Fatalf("unexpected meeting list: %+v", list.Meetings)
	}

	var got meeting.Session
	getJSON(t, ts, "/v1/meetings/g1", http.StatusOK, &got)
	if got.MeetingID != sess.MeetingID {
		t.Errorf("meeting id = %q, want %q", got.MeetingID, sess.MeetingID)
	}

	var errResp errorResponse
	getJSON(t, ts, "/v1/meetings/unknown", http.StatusNotFound, &errResp)
	if errResp.Code != "no_active_meeting" {
		t.Errorf("error code = %q, want no_active_meeting", errResp.Code)
	}
}

func TestRecentMeetings(t *testing.T) {
	srv, store, arch, _ := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sess, err := store.Start("g1", "vc1", "tc1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	ended, err := store.End("g1")
	if err != nil {
		t.Fatal(err)
	}
	if err := arch.SaveMeeting(context.Background(), ended, record.Info{SessionID: sess.MeetingID}); err != nil {
		t.Fatal(err)
	}

	var recent struct {
		Meetings []archive.MeetingRecord `json:"meetings"`
	}
	getJSON(t, ts, "/v1/meetings/recent", http.StatusOK, &recent)
	if len(recent.Meetings) != 1 || recent.Meetings[0].GuildID != "g1" {
		t.Fatalf("unexpected recent meetings: %+v", recent.Meetings)
	}

	var errResp errorResponse
	getJSON(t, ts, "/v1/meetings/recent?limit=nope", http.StatusBadRequest, &errResp)
	if errResp.Code != "invalid_limit" {
		t.Errorf("error code = %q, want invalid_limit", errResp.Code)
	}
}

func TestEventsWebsocket(t *testing.T) {
	srv, _, _, bus := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/meetings/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.Close()

	// Give the handler time to subscribe before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	bus.Publish(events.Event{Type: events.TypeMeetingStarted, GuildID: "g1"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got events.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if got.Type != events.TypeMeetingStarted || got.GuildID != "g1" {
		t.Errorf("event = %+v, want meeting_started for g1", got)
	}
}
