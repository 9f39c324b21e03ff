// Package video streams camera frames to a video consumer one request at a time.
package video

import (
	"iter"
	"sync"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/skyhil/hilbridge/internal/translate"
)

// ChunksPerService caps the messages handed to the link per Service call.
// gomavlib queues at most 64 writes per channel and drops the rest.
const ChunksPerService = 32

// Endpoint is the session a Streamer writes to.
type Endpoint interface {
	Connected() bool
	DrainInbound() iter.Seq[message.Message]
	SendRaw(msg message.Message) error
}

// Stats are cumulative frame counters. Sent counts frames whose every chunk
// reached the link.
type Stats struct {
	Requests uint64
	Sent     uint64
	Dropped  uint64
}

// Streamer applies pull-based backpressure: the consumer asks for a frame
// with DATA_TRANSMISSION_HANDSHAKE and each request is served by exactly
// one frame. Requests do not accumulate. A frame is written over several
// Service calls; no new request is served until it is out.
type Streamer struct {
	ep Endpoint

	mu      sync.Mutex
	pending bool
	outbox  []message.Message
	frame   uint64 // bumped when outbox is replaced or abandoned
	writing bool
	stats   Stats
}

// NewStreamer wraps ep.
func NewStreamer(ep Endpoint) *Streamer {
	return &Streamer{ep: ep}
}

// Service records new requests and writes the next batch of the frame in
// flight. It returns the write error that aborted that frame, if any.
func (s *Streamer) Service() error {
	s.collect()
	return s.flush()
}

func (s *Streamer) collect() {
	if !s.ep.Connected() {
		return
	}
	for msg := range s.ep.DrainInbound() {
		if _, ok := msg.(*common.MessageDataTransmissionHandshake); ok {
			s.mu.Lock()
			s.pending = true
			s.stats.Requests++
			s.mu.Unlock()
		}
	}
}

// HasRequest reports whether the consumer is waiting for a frame and the
// previous one is fully out.
func (s *Streamer) HasRequest() bool {
	s.collect()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending && len(s.outbox) == 0 && s.ep.Connected()
}

// Busy reports whether a frame is still being written.
func (s *Streamer) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outbox) > 0
}

// SendImage accepts one PNG frame if a request is pending and reports
// whether it did. The first batch is written at once and the rest by
// Service. Without a connected consumer, a pending request, or while
// another frame is in flight, the frame is dropped and no error is returned.
func (s *Streamer) SendImage(data []byte, width, height int) (bool, error) {
	s.mu.Lock()
	if !s.pending || len(s.outbox) > 0 || !s.ep.Connected() {
		s.stats.Dropped++
		s.mu.Unlock()
		return false, nil
	}
	s.pending = false
	s.mu.Unlock()

	hs, chunks, err := translate.ImageFrame(data, width, height)
	if err != nil {
		s.drop()
		return false, err
	}
	out := make([]message.Message, 0, len(chunks)+1)
	out = append(out, hs)
	for _, c := range chunks {
		out = append(out, c)
	}

	s.mu.Lock()
	s.outbox = out
	s.frame++
	s.mu.Unlock()

	if err := s.flush(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Streamer) flush() error {
	s.mu.Lock()
	if len(s.outbox) == 0 || s.writing {
		s.mu.Unlock()
		return nil
	}
	if !s.ep.Connected() {
		s.abandonLocked()
		s.mu.Unlock()
		return nil
	}
	n := min(ChunksPerService, len(s.outbox))
	batch, frame := s.outbox[:n], s.frame
	s.writing = true
	s.mu.Unlock()

	var err error
	for _, msg := range batch {
		if err = s.ep.SendRaw(msg); err != nil {
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.writing = false
	if frame != s.frame {
		return nil
	}
	if err != nil {
		s.abandonLocked()
		return err
	}
	s.outbox = s.outbox[n:]
	if len(s.outbox) == 0 {
		s.outbox = nil
		s.stats.Sent++
	}
	return nil
}

func (s *Streamer) abandonLocked() {
	s.outbox = nil
	s.frame++
	s.stats.Dropped++
}

// Reset forgets a pending request and abandons the frame in flight.
func (s *Streamer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = false
	if len(s.outbox) > 0 {
		s.outbox = nil
		s.frame++
	}
}

// Stats returns cumulative counters.
func (s *Streamer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Streamer) drop() {
	s.mu.Lock()
	s.stats.Dropped++
	s.mu.Unlock()
}
