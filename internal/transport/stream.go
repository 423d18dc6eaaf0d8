// ABOUTME: Streamed transport variant: SSE event stream inbound, HTTP POST outbound.
// ABOUTME: The first stream event names the POST endpoint for this session.

package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/HeetVekariya/devto-agent/internal/protocol"
)

// eventEndpoint is the bootstrap SSE event carrying the outbound POST URL.
// All later events carry ordinary frames.
const eventEndpoint = "endpoint"

// Stream is the streamed transport variant. Inbound frames arrive as SSE
// events on a long-lived GET; outbound frames are POSTed to the endpoint
// the server announced when the stream opened. The transport is
// message-oriented, so concurrent in-flight frames need no extra care
// beyond serializing the POSTs.
type Stream struct {
	httpClient *http.Client
	sendURL    string
	logger     *slog.Logger

	writeMu sync.Mutex
	frames  chan protocol.Frame
	cancel  context.CancelFunc

	closeMu sync.Mutex
	closed  bool
}

// DialStream opens the inbound event stream at baseURL/events and waits for
// the server to announce the outbound endpoint. The ctx bounds only the
// dial; the stream itself lives until Close or server disconnect.
func DialStream(ctx context.Context, baseURL string, httpClient *http.Client, logger *slog.Logger) (*Stream, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/events", nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("building stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("opening event stream: status %d", resp.StatusCode)
	}

	s := &Stream{
		httpClient: httpClient,
		logger:     logger.With("transport", "stream"),
		frames:     make(chan protocol.Frame, 16),
		cancel:     cancel,
	}

	endpointCh := make(chan string, 1)
	go s.readLoop(resp.Body, endpointCh)

	select {
	case ep, ok := <-endpointCh:
		if !ok {
			s.Close()
			return nil, fmt.Errorf("event stream ended before endpoint announcement")
		}
		s.sendURL, err = resolveEndpoint(baseURL, ep)
		if err != nil {
			s.Close()
			return nil, err
		}
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}

	s.logger.Debug("event stream established", "send_url", s.sendURL)
	return s, nil
}

// Send POSTs one frame to the announced endpoint. POSTs are serialized so
// the server observes whole frames in submission order.
func (s *Stream) Send(f protocol.Frame) error {
	s.closeMu.Lock()
	closed := s.closed
	s.closeMu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	resp, err := s.httpClient.Post(s.sendURL, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: post status %d", ErrChannelClosed, resp.StatusCode)
	}
	return nil
}

// Frames returns the inbound frame sequence; it closes when the server
// ends the event stream.
func (s *Stream) Frames() <-chan protocol.Frame {
	return s.frames
}

// Close tears down the event stream. Safe to call more than once.
func (s *Stream) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	s.cancel()
	return nil
}

// readLoop parses SSE events off the body. Short reads are buffered until a
// blank line completes the event; multi-line data fields are joined. A data
// payload that fails to decode is logged and discarded.
func (s *Stream) readLoop(body io.ReadCloser, endpointCh chan<- string) {
	defer close(s.frames)
	defer close(endpointCh)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	var (
		eventName string
		dataLines []string
		announced bool
	)

	dispatch := func() {
		if len(dataLines) == 0 {
			eventName = ""
			return
		}
		data := strings.Join(dataLines, "\n")
		dataLines = nil

		if eventName == eventEndpoint {
			eventName = ""
			if !announced {
				announced = true
				endpointCh <- data
			}
			return
		}
		eventName = ""

		f, err := protocol.Decode([]byte(data))
		if err != nil {
			s.logger.Warn("discarding malformed event", "error", err)
			return
		}
		s.frames <- f
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			dispatch()
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		}
	}
}

// resolveEndpoint turns the announced endpoint (usually relative) into an
// absolute URL against the dial base.
func resolveEndpoint(baseURL, endpoint string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint %q: %w", endpoint, err)
	}
	return base.ResolveReference(ref).String(), nil
}
