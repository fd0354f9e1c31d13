package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/sqlworker/internal/engine"
	"github.com/seantiz/sqlworker/internal/model"
)

type sseEvent struct {
	name string
	data string
}

func readSSE(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if cur.name != "" {
				events = append(events, cur)
			}
			cur = sseEvent{}
		}
	}
	return events
}

func TestStreamEventsNotFound(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/operations/nonexistent/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStreamEventsFinishedOperation(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/query", `{"sql":"SELECT 1"}`)
	id := decodeBody[queryResponse](t, resp).OperationID
	waitForStatus(t, ts.URL, id, model.StatusCompleted)

	resp, err := http.Get(ts.URL + "/v1/operations/" + id + "/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	events := readSSE(t, resp)
	if len(events) != 2 {
		t.Fatalf("events = %v, want status and done", events)
	}
	if events[0].name != "status" || events[0].data != model.StatusCompleted {
		t.Errorf("first event = %+v, want status completed", events[0])
	}
	if events[1].name != "done" {
		t.Errorf("last event = %+v, want done", events[1])
	}
}

func TestStreamEventsFollowsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Router())
	defer ts.Close()

	unblock := blockWorker(t, env.pool)

	resp := postJSON(t, ts.URL+"/v1/exec", `{"sql":"SELECT 1"}`)
	id := decodeBody[execResponse](t, resp).OperationID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/v1/operations/"+id+"/events", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	stream, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer stream.Body.Close()

	if stream.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", stream.StatusCode)
	}

	// Headers arrive only after the handler subscribed.
	unblock()

	events := readSSE(t, stream)
	var statuses []string
	for _, ev := range events {
		if ev.name != "status" {
			continue
		}
		var e engine.Event
		if err := json.Unmarshal([]byte(ev.data), &e); err != nil {
			t.Fatalf("decode event %q: %v", ev.data, err)
		}
		if e.OperationID != id {
			t.Errorf("event operation_id = %q, want %q", e.OperationID, id)
		}
		statuses = append(statuses, e.Status)
	}

	want := []string{model.StatusRunning, model.StatusCompleted}
	if strings.Join(statuses, ",") != strings.Join(want, ",") {
		t.Errorf("statuses = %v, want %v", statuses, want)
	}
	if len(events) == 0 || events[len(events)-1].name != "done" {
		t.Errorf("stream did not end with done: %v", events)
	}
}
