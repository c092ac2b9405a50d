package mpfdstream

import (
	"errors"
	"strings"
	"testing"

	"github.com/mailchannels/mpfdstream/target"
)

const boundary = "X"

func headers() map[string]string {
	return map[string]string{"Content-Type": "multipart/form-data; boundary=" + boundary}
}

func pushAll(t *testing.T, p *Parser, body []byte, chunkSize int) error {
	t.Helper()
	if chunkSize <= 0 {
		chunkSize = len(body)
		if chunkSize == 0 {
			chunkSize = 1
		}
	}
	for i := 0; i < len(body); i += chunkSize {
		end := i + chunkSize
		if end > len(body) {
			end = len(body)
		}
		if err := p.Push(body[i:end]); err != nil {
			return err
		}
	}
	return p.EOF()
}

// S1 — single text part.
func TestS1SingleTextPart(t *testing.T) {
	body := "--X\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\nhello\r\n--X--\r\n"

	p, err := New(headers())
	if err != nil {
		t.Fatal(err)
	}
	v := &target.Value{}
	if err := p.Register("a", v); err != nil {
		t.Fatal(err)
	}
	if err := pushAll(t, p, []byte(body), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String() != "hello" {
		t.Fatalf("value = %q, want %q", v.String(), "hello")
	}
	if p.Phase() != PhaseDone {
		t.Fatalf("phase = %v, want Done", p.Phase())
	}
}

// S2 — byte-by-byte delivery of S1.
func TestS2ByteByByteDelivery(t *testing.T) {
	body := "--X\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\nhello\r\n--X--\r\n"

	p, err := New(headers())
	if err != nil {
		t.Fatal(err)
	}
	v := &target.Value{}
	if err := p.Register("a", v); err != nil {
		t.Fatal(err)
	}
	if err := pushAll(t, p, []byte(body), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String() != "hello" {
		t.Fatalf("value = %q, want %q", v.String(), "hello")
	}
}

// S3 — delimiter-straddling chunking.
func TestS3DelimiterStraddlingChunking(t *testing.T) {
	prefix := "--X\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\nhell"
	suffix := "o\r\n--X--"

	p, err := New(headers())
	if err != nil {
		t.Fatal(err)
	}
	v := &target.Value{}
	if err := p.Register("a", v); err != nil {
		t.Fatal(err)
	}
	if err := p.Push([]byte(prefix)); err != nil {
		t.Fatalf("push 1: %v", err)
	}
	if err := p.Push([]byte(suffix)); err != nil {
		t.Fatalf("push 2: %v", err)
	}
	if err := p.EOF(); err != nil {
		t.Fatalf("eof: %v", err)
	}
	if v.String() != "hello" {
		t.Fatalf("value = %q, want %q, no boundary byte should leak", v.String(), "hello")
	}
}

// S4 — file part with filename and embedded CRLF payload bytes.
func TestS4FilePartWithFilename(t *testing.T) {
	payload := []byte{0x00, 0x01, '\r', '\n', 0x02}
	var body strings.Builder
	body.WriteString("--X\r\n")
	body.WriteString("Content-Disposition: form-data; name=\"f\"; filename=\"a.bin\"\r\n")
	body.WriteString("\r\n")
	body.Write(payload)
	body.WriteString("\r\n--X--\r\n")

	p, err := New(headers())
	if err != nil {
		t.Fatal(err)
	}
	v := &target.Value{}
	if err := p.Register("f", v); err != nil {
		t.Fatal(err)
	}
	if err := pushAll(t, p, []byte(body.String()), 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Filename != "a.bin" {
		t.Fatalf("filename = %q, want %q", v.Filename, "a.bin")
	}
	if string(v.Bytes()) != string(payload) {
		t.Fatalf("payload = %x, want %x", v.Bytes(), payload)
	}
}

// S5 — unregistered part ignored.
func TestS5UnregisteredPartIgnored(t *testing.T) {
	body := "--X\r\n" +
		"Content-Disposition: form-data; name=\"keep\"\r\n\r\n" +
		"kept-bytes" +
		"\r\n--X\r\n" +
		"Content-Disposition: form-data; name=\"skip\"\r\n\r\n" +
		"skipped-bytes" +
		"\r\n--X--\r\n"

	p, err := New(headers())
	if err != nil {
		t.Fatal(err)
	}
	v := &target.Value{}
	if err := p.Register("keep", v); err != nil {
		t.Fatal(err)
	}
	if err := pushAll(t, p, []byte(body), 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String() != "kept-bytes" {
		t.Fatalf("value = %q, want %q", v.String(), "kept-bytes")
	}
	if p.Phase() != PhaseDone {
		t.Fatalf("phase = %v, want Done", p.Phase())
	}
}

// S6 — truncated body.
func TestS6TruncatedBody(t *testing.T) {
	full := "--X\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\nhello\r\n--X--\r\n"
	truncated := full[:len(full)-5]

	p, err := New(headers())
	if err != nil {
		t.Fatal(err)
	}
	v := &target.Value{}
	started := false
	wrapped := &startTrackingTarget{Target: v, onStart: func() { started = true }}
	if err := p.Register("a", wrapped); err != nil {
		t.Fatal(err)
	}
	if err := p.Push([]byte(truncated)); err != nil {
		t.Fatalf("unexpected push error: %v", err)
	}
	err = p.EOF()
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Kind != KindTruncated {
		t.Fatalf("expected Truncated error, got %v", err)
	}
	if !started {
		t.Fatalf("expected target Start to have been called before truncation")
	}
}

type startTrackingTarget struct {
	target.Target
	onStart func()
}

func (s *startTrackingTarget) Start() error {
	s.onStart()
	return s.Target.Start()
}

func TestChunkingInvarianceAcrossAllSplitOffsets(t *testing.T) {
	body := []byte("--X\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\nhello world\r\n--X--\r\n")

	baselineValue := func() string {
		p, _ := New(headers())
		v := &target.Value{}
		_ = p.Register("a", v)
		if err := pushAll(t, p, body, 0); err != nil {
			t.Fatalf("baseline: %v", err)
		}
		return v.String()
	}()

	for size := 1; size <= len(body); size++ {
		p, err := New(headers())
		if err != nil {
			t.Fatal(err)
		}
		v := &target.Value{}
		if err := p.Register("a", v); err != nil {
			t.Fatal(err)
		}
		if err := pushAll(t, p, body, size); err != nil {
			t.Fatalf("chunk size %d: %v", size, err)
		}
		if v.String() != baselineValue {
			t.Fatalf("chunk size %d: value = %q, want %q", size, v.String(), baselineValue)
		}
	}
}

func TestDuplicateRegistrationIsRejected(t *testing.T) {
	p, err := New(headers())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Register("a", &target.Null{}); err != nil {
		t.Fatal(err)
	}
	if err := p.Register("a", &target.Null{}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestPushAfterDoneIsRejected(t *testing.T) {
	body := "--X\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\nhi\r\n--X--\r\n"
	p, err := New(headers())
	if err != nil {
		t.Fatal(err)
	}
	_ = p.Register("a", &target.Null{})
	if err := pushAll(t, p, []byte(body), 0); err != nil {
		t.Fatal(err)
	}
	err = p.Push([]byte("more"))
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Kind != KindPushAfterDone {
		t.Fatalf("expected PushAfterDone, got %v", err)
	}
	// latched: a second call returns the exact same error
	err2 := p.Push([]byte("more"))
	if err2 != err {
		t.Fatalf("expected latched identical error, got %v vs %v", err2, err)
	}
}

func TestEOFIsIdempotentOnceDone(t *testing.T) {
	body := "--X\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\nhi\r\n--X--\r\n"
	p, err := New(headers())
	if err != nil {
		t.Fatal(err)
	}
	_ = p.Register("a", &target.Null{})
	if err := pushAll(t, p, []byte(body), 0); err != nil {
		t.Fatal(err)
	}
	if err := p.EOF(); err != nil {
		t.Fatalf("expected idempotent success, got %v", err)
	}
}

func TestPreambleAndEpilogueAreIgnored(t *testing.T) {
	body := "ignored preamble junk" +
		"\r\n--X\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\nhi\r\n--X--\r\n" +
		"ignored epilogue junk"

	p, err := New(headers())
	if err != nil {
		t.Fatal(err)
	}
	v := &target.Value{}
	_ = p.Register("a", v)
	if err := pushAll(t, p, []byte(body), 5); err != nil {
		t.Fatal(err)
	}
	if v.String() != "hi" {
		t.Fatalf("value = %q, want %q", v.String(), "hi")
	}
}

func TestBareDelimiterAtBodyStart(t *testing.T) {
	// No leading CRLF at all, per spec 3/4.3.
	body := "--X\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\nhi\r\n--X--\r\n"
	p, err := New(headers())
	if err != nil {
		t.Fatal(err)
	}
	v := &target.Value{}
	_ = p.Register("a", v)
	if err := pushAll(t, p, []byte(body), 0); err != nil {
		t.Fatal(err)
	}
	if v.String() != "hi" {
		t.Fatalf("value = %q, want %q", v.String(), "hi")
	}
}
