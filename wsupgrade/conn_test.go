package wsupgrade

import (
	"bytes"
	"io"
	"testing"
)

// loopbackPipe lets a rawConn write into one end and read back from the
// other, so the masked-frame codec can be exercised without a real socket.
type loopbackPipe struct {
	toServer   *bytes.Buffer
	fromServer *bytes.Buffer
}

func (p *loopbackPipe) Write(b []byte) (int, error) { return p.toServer.Write(b) }
func (p *loopbackPipe) Read(b []byte) (int, error)  { return p.fromServer.Read(b) }
func (p *loopbackPipe) Close() error                { return nil }

func TestRawConnWriteMessageProducesMaskedFrame(t *testing.T) {
	pipe := &loopbackPipe{toServer: new(bytes.Buffer), fromServer: new(bytes.Buffer)}
	conn := newConn(pipe, "")

	if err := conn.WriteMessage(Message{Type: Text, Payload: []byte("hi")}); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	frame := pipe.toServer.Bytes()
	if len(frame) < 2 {
		t.Fatalf("frame too short: %x", frame)
	}
	if frame[0] != 0x81 {
		t.Fatalf("expected FIN+text opcode byte 0x81, got %#x", frame[0])
	}
	if frame[1]&0x80 == 0 {
		t.Fatal("expected client frame to set the mask bit")
	}
	if payloadLen := frame[1] & 0x7F; payloadLen != 2 {
		t.Fatalf("expected payload length 2, got %d", payloadLen)
	}
}

func TestRawConnReadMessageUnmasksServerFrame(t *testing.T) {
	pipe := &loopbackPipe{toServer: new(bytes.Buffer), fromServer: new(bytes.Buffer)}
	// Server frames are sent unmasked: FIN+text opcode, length 5, "hello".
	pipe.fromServer.Write([]byte{0x81, 0x05})
	pipe.fromServer.WriteString("hello")

	conn := newConn(pipe, "")
	msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if msg.Type != Text || string(msg.Payload) != "hello" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestRawConnReadMessageReassemblesContinuationFrames(t *testing.T) {
	pipe := &loopbackPipe{toServer: new(bytes.Buffer), fromServer: new(bytes.Buffer)}
	pipe.fromServer.Write([]byte{0x01, 0x03}) // text, not final, len 3
	pipe.fromServer.WriteString("abc")
	pipe.fromServer.Write([]byte{0x80, 0x03}) // continuation, final, len 3
	pipe.fromServer.WriteString("def")

	conn := newConn(pipe, "")
	msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if msg.Type != Text || string(msg.Payload) != "abcdef" {
		t.Fatalf("unexpected reassembled message: %+v", msg)
	}
}

var _ io.ReadWriteCloser = (*loopbackPipe)(nil)
