// Package ipc carries one request and one response per connection over a
// local unix socket.
//
// Two framings share the socket. A client that writes a CBOR map gets a CBOR
// response; anything else is read as a single text line and answered with a
// text block:
//
//	OK
//	<message>
//	---
//	<indented JSON result>
//
// where the first line is "ERR <kind>" on failure and the last two parts are
// present only when the response carries a result.
package ipc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/justestif/go-music-agent/internal/apperr"
)

// Request is one command sent to the daemon.
type Request struct {
	Command string `cbor:"command"`
	ID      string `cbor:"id,omitempty"`
}

// Response is the daemon's answer to a Request.
type Response struct {
	OK      bool        `cbor:"ok"`
	Kind    apperr.Kind `cbor:"kind,omitempty"`
	Message string      `cbor:"message"`
	Result  any         `cbor:"result,omitempty"`
	ID      string      `cbor:"id,omitempty"`
}

// Success returns an OK response.
func Success(message string, result any) Response {
	return Response{OK: true, Message: message, Result: result}
}

// Failure returns a failure response for err, classified by its kind.
func Failure(err error) Response {
	return Response{OK: false, Kind: apperr.KindOf(err), Message: apperr.Message(err)}
}

// Err returns the response as an error, or nil when it is OK.
func (r Response) Err() error {
	if r.OK {
		return nil
	}
	kind := r.Kind
	if kind == "" {
		kind = apperr.KindInternal
	}
	return apperr.New(kind, "daemon", r.Message)
}

const textSeparator = "---"

var errEmptyRequest = errors.New("empty request")

// readTextRequest reads one command line. A missing trailing newline is
// fine: clients may half-close instead.
func readTextRequest(r *bufio.Reader) (Request, error) {
	line, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return Request{}, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return Request{}, errEmptyRequest
	}
	return Request{Command: line}, nil
}

// renderText renders resp as a text block.
func renderText(resp Response) ([]byte, error) {
	var buf bytes.Buffer
	if resp.OK {
		buf.WriteString("OK\n")
	} else {
		kind := resp.Kind
		if kind == "" {
			kind = apperr.KindInternal
		}
		fmt.Fprintf(&buf, "ERR %s\n", kind)
	}
	if resp.Message != "" {
		buf.WriteString(strings.TrimRight(resp.Message, "\n"))
		buf.WriteByte('\n')
	}
	if resp.Result != nil {
		data, err := json.MarshalIndent(resp.Result, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding result: %w", err)
		}
		buf.WriteString(textSeparator + "\n")
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// ParseText parses a text response block. The result, when present, is
// decoded as generic JSON.
func ParseText(data []byte) (Response, error) {
	text := strings.TrimRight(string(data), "\n")
	status, rest, _ := strings.Cut(text, "\n")

	var resp Response
	switch {
	case status == "OK":
		resp.OK = true
	case strings.HasPrefix(status, "ERR "):
		resp.Kind = apperr.Kind(strings.TrimPrefix(status, "ERR "))
	default:
		return Response{}, fmt.Errorf("malformed status line %q", status)
	}

	message, payload, found := strings.Cut(rest, "\n"+textSeparator+"\n")
	if !found && strings.HasPrefix(rest, textSeparator+"\n") {
		message, payload, found = "", strings.TrimPrefix(rest, textSeparator+"\n"), true
	}
	resp.Message = message
	if found {
		if err := json.Unmarshal([]byte(payload), &resp.Result); err != nil {
			return Response{}, fmt.Errorf("decoding result: %w", err)
		}
	}
	return resp, nil
}
