package frame

import (
	"errors"
	"testing"
	"time"
)

func TestShapeValidate(t *testing.T) {
	if err := (Shape{Channels: 8, Length: 2048}).Validate(); err != nil {
		t.Fatalf("valid shape rejected: %v", err)
	}
	if err := (Shape{Channels: 0, Length: 2048}).Validate(); !errors.Is(err, ErrInvalidShape) {
		t.Fatalf("zero channels: got %v, want ErrInvalidShape", err)
	}
	if err := (Shape{Channels: 2, Length: -1}).Validate(); !errors.Is(err, ErrInvalidShape) {
		t.Fatalf("negative length: got %v, want ErrInvalidShape", err)
	}
}

func TestShapeTransformSize(t *testing.T) {
	cases := []struct {
		length int
		want   int
	}{
		{2048, 2048},
		{1000, 1024},
		{2049, 4096},
		{1, 1},
	}
	for _, tc := range cases {
		got := Shape{Channels: 1, Length: tc.length}.TransformSize()
		if got != tc.want {
			t.Fatalf("TransformSize(%d) = %d, want %d", tc.length, got, tc.want)
		}
	}
}

func TestNewZeroFilled(t *testing.T) {
	f := New(Shape{Channels: 4, Length: 16}, 48000)
	if got := f.Shape(); got != (Shape{Channels: 4, Length: 16}) {
		t.Fatalf("Shape() = %+v, want 4x16", got)
	}
	if f.SampleRate != 48000 {
		t.Fatalf("SampleRate = %v, want 48000", f.SampleRate)
	}
	for ch := range f.Data {
		for i, v := range f.Data[ch] {
			if v != 0 {
				t.Fatalf("Data[%d][%d] = %v, want 0", ch, i, v)
			}
		}
	}
}

func TestChannelsAreIndependent(t *testing.T) {
	f := New(Shape{Channels: 2, Length: 4}, 48000)
	f.Data[0][3] = 1
	if f.Data[1][0] != 0 {
		t.Fatal("write to channel 0 leaked into channel 1")
	}
}

func TestMatchRejectsWrongShape(t *testing.T) {
	f := New(Shape{Channels: 2, Length: 8}, 48000)
	if err := f.Match(Shape{Channels: 2, Length: 8}); err != nil {
		t.Fatalf("matching shape rejected: %v", err)
	}
	if err := f.Match(Shape{Channels: 4, Length: 8}); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("channel mismatch: got %v, want ErrShapeMismatch", err)
	}
	if err := f.Match(Shape{Channels: 2, Length: 16}); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("length mismatch: got %v, want ErrShapeMismatch", err)
	}
}

func TestMatchRejectsRaggedFrame(t *testing.T) {
	f := New(Shape{Channels: 2, Length: 8}, 48000)
	f.Data[1] = f.Data[1][:4]
	if err := f.Match(Shape{Channels: 2, Length: 8}); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("ragged frame: got %v, want ErrShapeMismatch", err)
	}
}

func TestCopyFrom(t *testing.T) {
	src := New(Shape{Channels: 2, Length: 4}, 44100)
	src.Data[0][0] = 1
	src.Data[1][3] = -2
	src.Timestamp = time.Unix(10, 0)

	dst := New(Shape{Channels: 2, Length: 4}, 48000)
	if err := dst.CopyFrom(src); err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}
	if dst.Data[0][0] != 1 || dst.Data[1][3] != -2 {
		t.Fatal("CopyFrom did not copy samples")
	}
	if dst.SampleRate != 44100 || !dst.Timestamp.Equal(time.Unix(10, 0)) {
		t.Fatal("CopyFrom did not copy metadata")
	}

	bad := New(Shape{Channels: 3, Length: 4}, 44100)
	if err := dst.CopyFrom(bad); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("shape mismatch: got %v, want ErrShapeMismatch", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	f := New(Shape{Channels: 1, Length: 4}, 48000)
	f.Data[0][0] = 7
	c := f.Clone()
	c.Data[0][0] = 99
	if f.Data[0][0] != 7 {
		t.Fatal("Clone should not share memory")
	}
}

func TestNextPowerOfTwo(t *testing.T) {
	cases := []struct{ n, want int }{
		{-3, 1}, {0, 1}, {1, 1}, {2, 2}, {3, 4}, {1024, 1024}, {1025, 2048},
	}
	for _, tc := range cases {
		if got := NextPowerOfTwo(tc.n); got != tc.want {
			t.Fatalf("NextPowerOfTwo(%d) = %d, want %d", tc.n, got, tc.want)
		}
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(5, 0, 1); got != 1 {
		t.Fatalf("Clamp(5,0,1) = %v, want 1", got)
	}
	if got := Clamp(-5, 0, 1); got != 0 {
		t.Fatalf("Clamp(-5,0,1) = %v, want 0", got)
	}
	if got := Clamp(0.5, 1, 0); got != 0.5 {
		t.Fatalf("Clamp with swapped bounds = %v, want 0.5", got)
	}
}
