package mqtt

import (
	"fmt"
	"testing"
)

func msg(i int) bufferedMsg {
	return bufferedMsg{topic: fmt.Sprintf("t/%d", i), payload: []byte{byte(i)}, qos: 1, retained: i%2 == 0}
}

func TestRingBufferDrainOrder(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		pushes   int
		wantFrom int // first payload expected after drain
		wantLen  int
	}{
		{"empty", 4, 0, 0, 0},
		{"partial", 4, 3, 0, 3},
		{"full", 4, 4, 0, 4},
		{"overflow keeps newest", 4, 7, 3, 4},
		{"wraps many times", 3, 10, 7, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := newRingBuffer(tt.capacity)
			for i := 0; i < tt.pushes; i++ {
				rb.push(msg(i))
			}
			if rb.len() != tt.wantLen {
				t.Errorf("len: got %d, want %d", rb.len(), tt.wantLen)
			}

			got := rb.drainAll()
			if len(got) != tt.wantLen {
				t.Fatalf("drained: got %d, want %d", len(got), tt.wantLen)
			}
			for i, m := range got {
				want := msg(tt.wantFrom + i)
				if m.topic != want.topic || m.payload[0] != want.payload[0] || m.retained != want.retained || m.qos != 1 {
					t.Errorf("item %d: got %+v, want %+v", i, m, want)
				}
			}
			if rb.len() != 0 || rb.drainAll() != nil {
				t.Error("buffer should be empty after drain")
			}
		})
	}
}

func TestRingBufferReusableAfterOverflow(t *testing.T) {
	rb := newRingBuffer(2)
	for i := 0; i < 5; i++ {
		rb.push(msg(i))
	}
	rb.drainAll()
	if rb.overflow {
		t.Error("drain should clear the overflow flag")
	}

	rb.push(msg(9))
	got := rb.drainAll()
	if len(got) != 1 || got[0].topic != "t/9" {
		t.Errorf("got %+v, want only t/9", got)
	}
}
