package events

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDispatchKnownEvent(t *testing.T) {
	r := NewRouter(nil)
	var got json.RawMessage
	r.Handle(ServerStatus, func(data json.RawMessage) error {
		got = data
		return nil
	})
	r.Dispatch(ServerStatus, json.RawMessage(`{"servers":{}}`))
	if string(got) != `{"servers":{}}` {
		t.Fatalf("handler not invoked with payload: %q", got)
	}
}

func TestDispatchUnknownEventDropped(t *testing.T) {
	r := NewRouter(nil)
	called := false
	r.Handle(ServerStatus, func(json.RawMessage) error {
		called = true
		return nil
	})
	r.Dispatch("totally-unknown", json.RawMessage(`{}`))
	if called {
		t.Fatalf("unknown event must not reach other handlers")
	}
}

func TestDispatchHandlerErrorSwallowed(t *testing.T) {
	r := NewRouter(nil)
	r.Handle(CredentialsUpdate, func(json.RawMessage) error {
		return errors.New("bad shape")
	})
	// must not panic or propagate
	r.Dispatch(CredentialsUpdate, json.RawMessage(`{"unexpected":1}`))
}

func TestHandleReplacesPrevious(t *testing.T) {
	r := NewRouter(nil)
	order := ""
	r.Handle(ModelsUpdate, func(json.RawMessage) error { order += "a"; return nil })
	r.Handle(ModelsUpdate, func(json.RawMessage) error { order += "b"; return nil })
	r.Dispatch(ModelsUpdate, nil)
	if order != "b" {
		t.Fatalf("expected replacement handler only, got %q", order)
	}
}
