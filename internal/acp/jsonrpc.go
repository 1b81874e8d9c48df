package acp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// JSON-RPC 2.0 error codes.
const (
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

const methodInitialize = "initialize"

// reservedKeys are the top-level members a JSON-RPC peer dispatches on.
var reservedKeys = []string{"jsonrpc", "id", "method", "params", "result", "error"}

// message is any JSON-RPC 2.0 message: a request, a notification (no ID)
// or a response (no method).
type message struct {
	ID     json.RawMessage
	Method string
}

func (m *message) isRequest() bool { return m.Method != "" && len(m.ID) > 0 }

func (m *message) isNotification() bool { return m.Method != "" && len(m.ID) == 0 }

func (m *message) isResponse() bool { return m.Method == "" && len(m.ID) > 0 }

// response is a JSON-RPC 2.0 error response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// lineKind says how the guard may treat a framed line.
type lineKind int

const (
	// plainLine is not JSON and is forwarded byte for byte.
	plainLine lineKind = iota
	// objectLine is a single well-formed JSON-RPC message.
	objectLine
	// malformedLine looks like JSON but is not exactly one well-formed
	// message: batches, decode failures, duplicate or case-variant reserved
	// keys, a jsonrpc member other than "2.0", a non-string method. A peer
	// might still dispatch it, so it is never forwarded.
	malformedLine
)

var (
	errBatch     = errors.New("batch messages are not supported")
	errTrailing  = errors.New("trailing data after message")
	errVersion   = errors.New(`jsonrpc member must be "2.0"`)
	errNotString = errors.New("method must be a string")
)

// parse classifies one framed line and decodes it when it is a message.
func parse(line []byte) (*message, lineKind, error) {
	body := bytes.TrimSpace(line)
	if len(body) == 0 {
		return nil, plainLine, nil
	}
	switch body[0] {
	case '[':
		return nil, malformedLine, errBatch
	case '{':
	default:
		return nil, plainLine, nil
	}

	members, err := decodeObject(body)
	if err != nil {
		return nil, malformedLine, err
	}
	if v, ok := members["jsonrpc"]; !ok || string(bytes.TrimSpace(v)) != `"2.0"` {
		return nil, malformedLine, errVersion
	}
	m := &message{}
	if raw, ok := members["method"]; ok {
		if err := json.Unmarshal(raw, &m.Method); err != nil {
			return nil, malformedLine, errNotString
		}
	}
	if raw, ok := members["id"]; ok && string(bytes.TrimSpace(raw)) != "null" {
		m.ID = raw
	}
	return m, objectLine, nil
}

// decodeObject reads the top-level members of a single JSON object. Member
// names are matched exactly; a repeated name, or a name that differs from a
// reserved key only in case, is an error because peers disagree on which
// occurrence wins.
func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, fmt.Errorf("expected object: %v", err)
	}
	members := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		if _, dup := members[key]; dup {
			return nil, fmt.Errorf("duplicate member %q", key)
		}
		for _, r := range reservedKeys {
			if key != r && strings.EqualFold(key, r) {
				return nil, fmt.Errorf("member %q shadows %q", key, r)
			}
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		members[key] = val
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailing
	}
	return members, nil
}

// sameID compares two raw IDs ignoring surrounding whitespace.
func sameID(a, b json.RawMessage) bool {
	return len(a) > 0 && bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b))
}

// lineEnding returns the trailing newline bytes of line.
func lineEnding(line []byte) []byte {
	return line[len(bytes.TrimRight(line, "\r\n")):]
}
