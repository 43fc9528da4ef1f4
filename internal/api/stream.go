// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/jeranaias/flai-tui/internal/model"
)

// =============================================================================
// STREAMING CONSTANTS
// =============================================================================

// MaxRecordSize is the maximum allowed size of one stream record (1MB).
// Grounding payloads can be large, so this is well above a token chunk.
const MaxRecordSize = 1024 * 1024

// Event types that carry metadata instead of segment text.
const (
	EventMetaInfo  model.SegmentType = "meta_info"
	EventGrounding model.SegmentType = "google_grounding_data"
)

// doneSentinel is the advisory end-of-stream record.
var doneSentinel = []byte("[DONE]")

// errRecordTooLarge is returned for a line longer than MaxRecordSize.
var errRecordTooLarge = errors.New("record exceeds maximum size")

// =============================================================================
// STREAMING TYPES
// =============================================================================

// StreamEvent is one decoded stream record.
type StreamEvent struct {
	MessageID string            `json:"message_id"`
	Type      model.SegmentType `json:"type"`
	Data      json.RawMessage   `json:"data"`
}

// Content returns data.content for content events. Metadata events and
// payloads without a content field yield "".
func (e StreamEvent) Content() (string, error) {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return "", nil
	}
	var payload struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(e.Data, &payload); err != nil {
		return "", fmt.Errorf("decode %s content: %w", e.Type, err)
	}
	return payload.Content, nil
}

// MetaInfo decodes the payload of a meta_info event.
func (e StreamEvent) MetaInfo() (model.MetaInfo, error) {
	var meta model.MetaInfo
	if err := json.Unmarshal(e.Data, &meta); err != nil {
		return model.MetaInfo{}, fmt.Errorf("decode meta_info: %w", err)
	}
	return meta, nil
}

// Grounding decodes the payload of a google_grounding_data event.
func (e StreamEvent) Grounding() (model.GroundingData, error) {
	var g model.GroundingData
	if err := json.Unmarshal(e.Data, &g); err != nil {
		return model.GroundingData{}, fmt.Errorf("decode grounding data: %w", err)
	}
	return g, nil
}

// RecordError reports a stream record that could not be decoded. The stream
// itself is still readable.
type RecordError struct {
	Record string
	Err    error
}

// Error implements the error interface.
func (e *RecordError) Error() string {
	rec := e.Record
	if len(rec) > 80 {
		rec = rec[:80] + "..."
	}
	return fmt.Sprintf("malformed stream record %q: %v", rec, e.Err)
}

// Unwrap returns the decode error.
func (e *RecordError) Unwrap() error {
	return e.Err
}

// IsRecordError reports whether err only affects a single record.
func IsRecordError(err error) bool {
	var recErr *RecordError
	return errors.As(err, &recErr)
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader reads "data:" records from a Server-Sent Events stream. Each data
// line is one record; event:, id:, retry: and comment lines are ignored, as
// is anything else that is not a data line.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{
		reader: bufio.NewReaderSize(r, 64*1024),
	}
}

// ReadRecord returns the payload of the next data line. It returns io.EOF
// when the stream ends and errRecordTooLarge, wrapped in a RecordError, for
// an oversized line.
func (s *SSEReader) ReadRecord() ([]byte, error) {
	for {
		line, err := s.readLine()
		if err != nil {
			if errors.Is(err, errRecordTooLarge) {
				return nil, &RecordError{Err: err}
			}
			if err == io.EOF && len(line) == 0 {
				return nil, io.EOF
			}
			if err != io.EOF {
				return nil, err
			}
		}

		line = bytes.TrimRight(line, "\r\n")
		if bytes.HasPrefix(line, []byte("data:")) {
			data := bytes.TrimPrefix(line[5:], []byte(" "))
			if len(bytes.TrimSpace(data)) > 0 {
				return data, nil
			}
		}
		if err == io.EOF {
			return nil, io.EOF
		}
	}
}

// readLine reads one line, refusing to buffer more than MaxRecordSize. The
// returned line may lack its newline at EOF.
func (s *SSEReader) readLine() ([]byte, error) {
	var buf []byte
	tooLarge := false
	for {
		chunk, err := s.reader.ReadSlice('\n')
		if !tooLarge {
			if len(buf)+len(chunk) > MaxRecordSize {
				tooLarge = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if tooLarge {
			if err != nil && err != io.EOF {
				return nil, err
			}
			return nil, errRecordTooLarge
		}
		return buf, err
	}
}

// =============================================================================
// EVENT READER
// =============================================================================

// EventReader decodes stream records into StreamEvents.
type EventReader struct {
	body    io.Reader
	sse     *SSEReader
	sawDone bool
}

// NewEventReader reads events from r. If r is an io.Closer, Close closes it.
func NewEventReader(r io.Reader) *EventReader {
	return &EventReader{body: r, sse: NewSSEReader(r)}
}

// Next returns the next event.
//
// A malformed record yields a *RecordError and the caller may keep reading.
// The "[DONE]" sentinel is noted (see SawDone) and skipped; the stream ends
// only when the body does, with io.EOF. Any other error is a transport
// failure wrapped in *Error.
func (r *EventReader) Next() (StreamEvent, error) {
	for {
		data, err := r.sse.ReadRecord()
		if err != nil {
			if err == io.EOF || IsRecordError(err) {
				return StreamEvent{}, err
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return StreamEvent{}, err
			}
			return StreamEvent{}, networkError(fmt.Errorf("read stream: %w", err))
		}

		if bytes.Equal(bytes.TrimSpace(data), doneSentinel) {
			r.sawDone = true
			continue
		}

		var ev StreamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return StreamEvent{}, &RecordError{Record: string(data), Err: err}
		}
		return ev, nil
	}
}

// SawDone reports whether the "[DONE]" sentinel has been read.
func (r *EventReader) SawDone() bool {
	return r.sawDone
}

// Close closes the underlying body when it is closable.
func (r *EventReader) Close() error {
	if c, ok := r.body.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// =============================================================================
// STREAMING REQUEST
// =============================================================================

// StreamMessage posts a message and returns a reader over the streamed reply.
// Cancelling ctx aborts the stream. The caller must Close the reader.
//
// A non-OK status or a JSON error envelope in place of the stream is returned
// as *Error before any event is read.
func (c *Client) StreamMessage(ctx context.Context, sendReq SendRequest) (*EventReader, error) {
	if sendReq.MessagePath == nil {
		sendReq.MessagePath = []string{}
	}
	if sendReq.Tools == nil {
		sendReq.Tools = []string{}
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/messages", nil, sendReq, true)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		c.logger.Warn("stream request failed", "error", err)
		return nil, networkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		if resp.StatusCode == http.StatusUnauthorized {
			c.unauthorized()
		}
		return nil, statusError(resp.StatusCode)
	}

	// errors before streaming starts come back as a regular envelope
	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType == "application/json" {
		defer resp.Body.Close()
		raw, err := readResponse(resp.Body)
		if err != nil {
			return nil, networkError(err)
		}
		if err := c.decodeEnvelope(raw, nil); err != nil {
			return nil, err
		}
		return NewEventReader(bytes.NewReader(raw)), nil
	}

	if resp.Body == nil {
		return nil, networkError(ErrEmptyStream)
	}

	c.logger.Debug("stream opened", "conversation", sendReq.ConversationID, "message", sendReq.ID)
	return NewEventReader(resp.Body), nil
}
