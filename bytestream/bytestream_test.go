package bytestream_test

import (
	"bytes"
	"testing"

	"github.com/momentics/wsloop/bytestream"
)

func TestPushPullOrder(t *testing.T) {
	s := bytestream.New()
	if err := s.PushBackN([]byte("world")); err != nil {
		t.Fatal(err)
	}
	if err := s.PushN([]byte("hello ")); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 11 {
		t.Fatalf("Len = %d, want 11", s.Len())
	}

	dst := make([]byte, 6)
	n, err := s.Pull(dst, 0)
	if err != nil || n != 6 {
		t.Fatalf("Pull = %d, %v", n, err)
	}
	if string(dst) != "hello " {
		t.Errorf("Pull got %q", dst)
	}
	if s.Len() != 5 {
		t.Errorf("Len after Pull = %d, want 5", s.Len())
	}
}

func TestPullReducesByReturnedCount(t *testing.T) {
	s := bytestream.FromBytes([]byte("abc"))
	dst := make([]byte, 10)
	n, err := s.Pull(dst, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || s.Len() != 0 {
		t.Errorf("n=%d len=%d, want 3 and 0", n, s.Len())
	}
}

func TestPullBack(t *testing.T) {
	s := bytestream.FromBytes([]byte("abcdef"))
	dst := make([]byte, 2)
	n, err := s.PullBack(dst, 0)
	if err != nil || n != 2 {
		t.Fatalf("PullBack = %d, %v", n, err)
	}
	if string(dst) != "ef" {
		t.Errorf("PullBack got %q, want \"ef\"", dst)
	}
	if !bytes.Equal(s.Bytes(), []byte("abcd")) {
		t.Errorf("remainder %q", s.Bytes())
	}
}

func TestCopyNonDestructive(t *testing.T) {
	s := bytestream.FromBytes([]byte("abcdef"))
	dst := make([]byte, 3)
	if _, err := s.Copy(dst, 2); err != nil {
		t.Fatal(err)
	}
	if string(dst) != "cde" {
		t.Errorf("Copy got %q", dst)
	}
	if s.Len() != 6 {
		t.Errorf("Copy mutated the stream, len=%d", s.Len())
	}
}

func TestErase(t *testing.T) {
	s := bytestream.FromBytes([]byte("abcdef"))
	if err := s.Erase(1, 3); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(s.Bytes(), []byte("aef")) {
		t.Errorf("Erase got %q", s.Bytes())
	}
	if err := s.Erase(2, 5); err == nil {
		t.Error("Erase past the end should fail")
	}
}

func TestMoveTo(t *testing.T) {
	src := bytestream.FromBytes([]byte("abcdef"))
	dst := bytestream.FromBytes([]byte("xy"))
	if err := src.MoveTo(dst, 3, 1); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dst.Bytes(), []byte("xybcd")) {
		t.Errorf("dst = %q", dst.Bytes())
	}
	if !bytes.Equal(src.Bytes(), []byte("aef")) {
		t.Errorf("src = %q", src.Bytes())
	}
}

func TestIndexOf(t *testing.T) {
	s := bytestream.FromBytes([]byte("abcabc"))
	if got := s.IndexOf([]byte("bc"), 0, bytestream.NPOS); got != 1 {
		t.Errorf("IndexOf = %d, want 1", got)
	}
	if got := s.IndexOf([]byte("bc"), 2, bytestream.NPOS); got != 4 {
		t.Errorf("IndexOf from 2 = %d, want 4", got)
	}
	if got := s.IndexOf([]byte("zz"), 0, bytestream.NPOS); got != bytestream.NPOS {
		t.Errorf("IndexOf missing = %d, want NPOS", got)
	}
	if got := s.IndexOfByte('c', 0, 2); got != bytestream.NPOS {
		t.Errorf("IndexOfByte bounded = %d, want NPOS", got)
	}
}

// IndexOfBack bound semantics: offset is the inclusive lower bound, end
// the exclusive upper bound, and offset beyond end yields NPOS.
func TestIndexOfBackBounds(t *testing.T) {
	s := bytestream.FromBytes([]byte("abcabc"))
	if got := s.IndexOfBack([]byte("bc"), 0, bytestream.NPOS); got != 4 {
		t.Errorf("IndexOfBack = %d, want 4", got)
	}
	if got := s.IndexOfBack([]byte("bc"), 0, 4); got != 1 {
		t.Errorf("IndexOfBack bounded = %d, want 1", got)
	}
	if got := s.IndexOfBack([]byte("bc"), 5, 3); got != bytestream.NPOS {
		t.Errorf("IndexOfBack offset>end = %d, want NPOS", got)
	}
	if got := s.IndexOfBackByte('a', 1, bytestream.NPOS); got != 3 {
		t.Errorf("IndexOfBackByte = %d, want 3", got)
	}
}

func TestCompare(t *testing.T) {
	s := bytestream.FromBytes([]byte("abc"))
	if got := s.Compare([]byte("abc"), 0, bytestream.NPOS); got != 0 {
		t.Errorf("Compare equal = %d", got)
	}
	if got := s.Compare([]byte("abd"), 0, bytestream.NPOS); got >= 0 {
		t.Errorf("Compare smaller = %d", got)
	}
	if got := s.Compare([]byte("bc"), 1, bytestream.NPOS); got != 0 {
		t.Errorf("Compare window = %d", got)
	}
}

func TestIsUTF8(t *testing.T) {
	cases := []struct {
		in    []byte
		valid bool
	}{
		{[]byte("plain ascii"), true},
		{[]byte("héllo wörld"), true},
		{[]byte("\xE2\x82\xAC"), true},          // euro sign
		{[]byte("\xF0\x9F\x92\xA9"), true},      // astral plane
		{[]byte{0xC0, 0xAF}, false},             // overlong '/'
		{[]byte{0xED, 0xA0, 0x80}, false},       // surrogate half
		{[]byte{0xF4, 0x90, 0x80, 0x80}, false}, // above U+10FFFF
		{[]byte{0x80}, false},                   // orphan continuation
		{[]byte{0xE2, 0x82}, false},             // truncated sequence
	}
	for _, c := range cases {
		s := bytestream.FromBytes(c.in)
		if got := s.IsUTF8(); got != c.valid {
			t.Errorf("IsUTF8(%x) = %v, want %v", c.in, got, c.valid)
		}
	}
}

func TestToUTF8DropsMalformed(t *testing.T) {
	s := bytestream.FromBytes([]byte{'a', 0xC0, 0xAF, 'b', 0x80, 'c'})
	if err := s.ToUTF8(); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(s.Bytes(), []byte("abc")) {
		t.Errorf("ToUTF8 got %q", s.Bytes())
	}
	if !s.IsUTF8() {
		t.Error("repaired stream still invalid")
	}
}

func TestUTF8StateIncremental(t *testing.T) {
	var u bytestream.UTF8State
	// euro sign split across feeds
	if !u.Feed([]byte{0xE2}) || !u.Feed([]byte{0x82}) || !u.Feed([]byte{0xAC}) {
		t.Fatal("split sequence rejected")
	}
	if !u.Final() {
		t.Error("Final after complete sequence")
	}

	u.Reset()
	if !u.Feed([]byte{0xE2, 0x82}) {
		t.Fatal("prefix rejected")
	}
	if u.Final() {
		t.Error("Final with dangling sequence")
	}

	u.Reset()
	if u.Feed([]byte{0xC0, 0xAF}) {
		t.Error("overlong accepted")
	}
}

func TestLockedTryVariants(t *testing.T) {
	l := bytestream.NewLocked(bytestream.New())
	if err := l.TryPushBackN([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	dst := make([]byte, 3)
	n, err := l.TryPull(dst, 0)
	if err != nil || n != 3 {
		t.Fatalf("TryPull = %d, %v", n, err)
	}
	if l.Len() != 0 {
		t.Errorf("Len = %d", l.Len())
	}
}
