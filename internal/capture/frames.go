package capture

import (
	"errors"
	"io"
	"mime/multipart"
	"sync"
)

// mpjpegBoundary is the part boundary ffmpeg's mpjpeg muxer writes.
const mpjpegBoundary = "ffmpeg"

// broadcaster fans decoded frames out to preview subscribers. Slow
// subscribers miss frames; the producer never blocks.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan []byte
	next   int
	last   []byte
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan []byte)}
}

func (b *broadcaster) ContentType() string { return "image/jpeg" }

// Subscribe returns a channel of frames starting with the most recent one.
// The channel is closed when the track ends or cancel is called.
func (b *broadcaster) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 2)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	if b.last != nil {
		ch <- b.last
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

func (b *broadcaster) publish(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.last = frame
	for _, ch := range b.subs {
		select {
		case ch <- frame:
		default:
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// pumpFrames decodes an mpjpeg stream and publishes every frame. Whatever
// follows a malformed part is drained so the producer can keep writing
// until it is stopped.
func pumpFrames(r io.Reader, publish func([]byte)) error {
	reader := multipart.NewReader(r, mpjpegBoundary)
	for {
		part, err := reader.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			_, _ = io.Copy(io.Discard, r)
			return err
		}
		frame, err := io.ReadAll(part)
		_ = part.Close()
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			_, _ = io.Copy(io.Discard, r)
			return err
		}
		if len(frame) > 0 {
			publish(frame)
		}
	}
}
