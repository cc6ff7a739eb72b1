// Package audioring buffers inbound audio frames between a transport
// read loop and the voice-activity segmenter. The ring is bounded and
// non-blocking: when full, the oldest frames are discarded so a slow
// consumer can never stall the socket.
package audioring

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"
)

// Frame is one chunk of raw PCM16 audio as received from a transport.
type Frame struct {
	Data       []byte
	Timestamp  time.Time
	SampleRate int32
	Channels   int16
}

const frameHeaderLen = 8 + 4 + 2 + 4 // timestamp + sampleRate + channels + dataLen

// MarshalBinary serializes the frame for ring storage.
func (f *Frame) MarshalBinary() []byte {
	buf := make([]byte, frameHeaderLen+len(f.Data))
	binary.LittleEndian.PutUint64(buf[0:], uint64(f.Timestamp.UnixNano()))
	binary.LittleEndian.PutUint32(buf[8:], uint32(f.SampleRate))
	binary.LittleEndian.PutUint16(buf[12:], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[14:], uint32(len(f.Data)))
	copy(buf[frameHeaderLen:], f.Data)
	return buf
}

// UnmarshalBinary restores a frame serialized by MarshalBinary.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < frameHeaderLen {
		return errors.New("audioring: frame record too short")
	}
	f.Timestamp = time.Unix(0, int64(binary.LittleEndian.Uint64(data[0:])))
	f.SampleRate = int32(binary.LittleEndian.Uint32(data[8:]))
	f.Channels = int16(binary.LittleEndian.Uint16(data[12:]))
	dataLen := int(binary.LittleEndian.Uint32(data[14:]))
	if len(data[frameHeaderLen:]) < dataLen {
		return errors.New("audioring: truncated frame data")
	}
	f.Data = make([]byte, dataLen)
	copy(f.Data, data[frameHeaderLen:frameHeaderLen+dataLen])
	return nil
}

// FrameRing is a bounded FIFO of audio frames.
type FrameRing interface {
	Enqueue(f Frame) error
	Dequeue() (Frame, bool)
	Len() int
	Capacity() int
	Reset()
}

// mu guards the multi-read/multi-write record sequences. The ring
// stores size-prefixed records, so a producer evicting and a consumer
// dequeueing must never interleave their individual rb calls or a
// reader ends up treating record bytes as a size header.
type frameRing struct {
	size int

	mu sync.Mutex
	rb *ringbuffer.RingBuffer
}

// New creates a frame ring with the given byte capacity.
func New(size int) FrameRing {
	return &frameRing{
		size: size,
		rb:   ringbuffer.New(size).SetBlocking(false),
	}
}

func (r *frameRing) Capacity() int { return r.size }

func (r *frameRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rb.Length()
}

func (r *frameRing) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rb.Reset()
}

// Enqueue appends a frame, evicting the oldest frames when the ring is
// too full to hold the new one.
func (r *frameRing) Enqueue(f Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record := f.MarshalBinary()
	need := len(record) + 4
	if need > r.rb.Capacity() {
		return errors.New("audioring: frame larger than ring capacity")
	}
	for r.rb.Free() < need {
		if !r.skipOldest() {
			r.rb.Reset()
			break
		}
	}

	var sizeBytes [4]byte
	binary.LittleEndian.PutUint32(sizeBytes[:], uint32(len(record)))
	if _, err := r.rb.Write(sizeBytes[:]); err != nil {
		return err
	}
	_, err := r.rb.Write(record)
	return err
}

// Dequeue removes and returns the oldest frame.
func (r *frameRing) Dequeue() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rb.IsEmpty() {
		return Frame{}, false
	}
	var sizeBytes [4]byte
	if n, err := r.rb.Read(sizeBytes[:]); err != nil || n != 4 {
		return Frame{}, false
	}
	size := int(binary.LittleEndian.Uint32(sizeBytes[:]))
	record := make([]byte, size)
	if n, err := r.rb.Read(record); err != nil || n != size {
		return Frame{}, false
	}
	var f Frame
	if err := f.UnmarshalBinary(record); err != nil {
		return Frame{}, false
	}
	return f, true
}

func (r *frameRing) skipOldest() bool {
	var sizeBytes [4]byte
	if n, err := r.rb.Read(sizeBytes[:]); err != nil || n != 4 {
		return false
	}
	size := int(binary.LittleEndian.Uint32(sizeBytes[:]))
	if size > 0 {
		skip := make([]byte, size)
		if n, err := r.rb.Read(skip); err != nil || n != size {
			return false
		}
	}
	return true
}
