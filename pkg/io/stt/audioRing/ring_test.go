package audioring

import (
	"testing"
	"time"
)

func TestFrameRingEnqueueDequeue(t *testing.T) {
	ring := New(1024)

	if ring.Capacity() != 1024 {
		t.Errorf("expected capacity 1024, got %d", ring.Capacity())
	}

	in := Frame{
		Data:       []byte{1, 2, 3, 4, 5, 6},
		Timestamp:  time.Now(),
		SampleRate: 16000,
		Channels:   1,
	}
	if err := ring.Enqueue(in); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	out, ok := ring.Dequeue()
	if !ok {
		t.Fatal("dequeue returned no frame")
	}
	if len(out.Data) != len(in.Data) {
		t.Fatalf("expected %d data bytes, got %d", len(in.Data), len(out.Data))
	}
	for i := range out.Data {
		if out.Data[i] != in.Data[i] {
			t.Errorf("data byte %d: expected %d, got %d", i, in.Data[i], out.Data[i])
		}
	}
	if out.SampleRate != in.SampleRate || out.Channels != in.Channels {
		t.Errorf("format mismatch: got %d/%d", out.SampleRate, out.Channels)
	}

	if _, ok := ring.Dequeue(); ok {
		t.Error("expected empty ring after dequeue")
	}
}

func TestFrameRingDropsOldestWhenFull(t *testing.T) {
	// Each record is 18 header + 4 prefix + 20 data = 42 bytes; a 100 byte
	// ring holds two frames at most.
	ring := New(100)
	for i := 0; i < 5; i++ {
		f := Frame{
			Data:       make([]byte, 20),
			Timestamp:  time.Now(),
			SampleRate: 16000,
			Channels:   1,
		}
		f.Data[0] = byte(i)
		if err := ring.Enqueue(f); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	first, ok := ring.Dequeue()
	if !ok {
		t.Fatal("expected at least one frame")
	}
	if first.Data[0] == 0 {
		t.Error("oldest frame should have been evicted")
	}
}

func TestFrameRingConcurrentOverflowKeepsFramesIntact(t *testing.T) {
	// A small ring forces eviction on nearly every enqueue while a
	// consumer drains in parallel, the same shape as a socket read loop
	// feeding the segmenter pump. Record framing must never desync: a
	// desynced size header surfaces as a corrupt frame or a giant
	// allocation.
	ring := New(2048)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 5000; i++ {
			f := Frame{
				Data:       make([]byte, 64),
				Timestamp:  time.Now(),
				SampleRate: 16000,
				Channels:   1,
			}
			f.Data[0] = 0xAB
			if err := ring.Enqueue(f); err != nil {
				t.Errorf("enqueue %d: %v", i, err)
				return
			}
		}
	}()

	drain := func() {
		for {
			f, ok := ring.Dequeue()
			if !ok {
				return
			}
			if len(f.Data) != 64 || f.Data[0] != 0xAB {
				t.Fatalf("corrupt frame: %d bytes, first byte %#x", len(f.Data), f.Data[0])
			}
			if f.SampleRate != 16000 || f.Channels != 1 {
				t.Fatalf("corrupt frame header: %d/%d", f.SampleRate, f.Channels)
			}
		}
	}

	for {
		select {
		case <-done:
			drain()
			return
		default:
			drain()
		}
	}
}

func TestFrameRingRejectsOversizedFrame(t *testing.T) {
	ring := New(64)
	err := ring.Enqueue(Frame{Data: make([]byte, 128)})
	if err == nil {
		t.Error("expected error for frame larger than ring")
	}
}
