package gostratum

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestUnmarshalEvent(t *testing.T) {
	event, err := UnmarshalEvent([]byte(`{"id":1,"jsonrpc":"2.0","method":"login","params":{"login":"w","pass":"x"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if event.Method != StratumMethodLogin || event.Id != float64(1) {
		t.Fatalf("unexpected event %+v", event)
	}
	params := map[string]string{}
	if err := json.Unmarshal(event.Params, &params); err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff(map[string]string{"login": "w", "pass": "x"}, params); d != "" {
		t.Fatalf("unexpected params: %s", d)
	}

	if _, err := UnmarshalEvent([]byte(`{"id":1,"result":true}`)); err == nil {
		t.Fatal("accepted an event without a method")
	}
	if _, err := UnmarshalEvent([]byte(`{"id":1,`)); err == nil {
		t.Fatal("accepted malformed json")
	}
}

func TestUnmarshalMessage(t *testing.T) {
	cases := []struct {
		line     string
		response bool
	}{
		{line: `{"id":3,"jsonrpc":"2.0","result":{"status":"OK"},"error":null}`, response: true},
		{line: `{"id":4,"jsonrpc":"2.0","error":{"code":-1,"message":"Low difficulty share"}}`, response: true},
		{line: `{"jsonrpc":"2.0","method":"job","params":{"job_id":"1"}}`, response: false},
	}
	for _, c := range cases {
		msg, err := UnmarshalMessage([]byte(c.line))
		if err != nil {
			t.Fatal(err)
		}
		if msg.IsResponse() != c.response {
			t.Fatalf("%s: expected response=%t", c.line, c.response)
		}
	}

	msg, _ := UnmarshalMessage([]byte(cases[1].line))
	if d := cmp.Diff(&JsonRpcError{Code: -1, Message: "Low difficulty share"}, msg.Error); d != "" {
		t.Fatalf("unexpected error: %s", d)
	}
}

func TestNewEvent(t *testing.T) {
	event, err := NewEvent(int64(7), StratumMethodSubmit, map[string]string{"job_id": "1"})
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}
	expected := `{"id":7,"jsonrpc":"2.0","method":"submit","params":{"job_id":"1"}}`
	if d := cmp.Diff(expected, string(encoded)); d != "" {
		t.Fatalf("unexpected encoding: %s", d)
	}
}
