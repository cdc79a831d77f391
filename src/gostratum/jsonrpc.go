package gostratum

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type StratumMethod string

const (
	StratumMethodLogin     StratumMethod = "login"
	StratumMethodSubmit    StratumMethod = "submit"
	StratumMethodKeepalive StratumMethod = "keepalived"
	StratumMethodJob       StratumMethod = "job"
)

// JsonRpcEvent is an inbound request. Params is kept raw, each handler decodes
// the shape it expects.
type JsonRpcEvent struct {
	Id      any             `json:"id"`
	Version string          `json:"jsonrpc,omitempty"`
	Method  StratumMethod   `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JsonRpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *JsonRpcError) Error() string {
	return e.Message
}

type JsonRpcResponse struct {
	Id      any           `json:"id"`
	Version string        `json:"jsonrpc"`
	Result  any           `json:"result"`
	Error   *JsonRpcError `json:"error"`
}

// JsonRpcNotify is a server push without an id.
type JsonRpcNotify struct {
	Version string        `json:"jsonrpc"`
	Method  StratumMethod `json:"method"`
	Params  any           `json:"params"`
}

// JsonRpcMessage decodes any line seen on a stratum connection: a request, a
// notification or a response.
type JsonRpcMessage struct {
	Id     any             `json:"id"`
	Method StratumMethod   `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *JsonRpcError   `json:"error"`
}

func (m *JsonRpcMessage) IsResponse() bool {
	return m.Method == "" && m.Id != nil
}

func NewEvent(id any, method StratumMethod, params any) (JsonRpcEvent, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return JsonRpcEvent{}, errors.Wrap(err, "failed marshalling params")
	}
	return JsonRpcEvent{
		Id:      id,
		Version: "2.0",
		Method:  method,
		Params:  raw,
	}, nil
}

func UnmarshalEvent(in []byte) (JsonRpcEvent, error) {
	event := JsonRpcEvent{}
	if err := json.Unmarshal(in, &event); err != nil {
		return event, errors.Wrap(err, "failed unmarshalling event")
	}
	if event.Method == "" {
		return event, errors.New("event has no method")
	}
	return event, nil
}

func UnmarshalResponse(in []byte) (JsonRpcResponse, error) {
	resp := JsonRpcResponse{}
	if err := json.Unmarshal(in, &resp); err != nil {
		return resp, errors.Wrap(err, "failed unmarshalling response")
	}
	return resp, nil
}

func UnmarshalMessage(in []byte) (JsonRpcMessage, error) {
	msg := JsonRpcMessage{}
	if err := json.Unmarshal(in, &msg); err != nil {
		return msg, errors.Wrap(err, "failed unmarshalling message")
	}
	return msg, nil
}
