package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Codec reads and writes jeux packets over a byte stream, framing each as a
// fixed-size Header optionally followed by a payload of Header.Size bytes.
type Codec struct {
	rw io.ReadWriter
	r  io.Reader
	w  io.Writer
}

// NewCodec creates a codec that both sends and receives over rw.
func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{rw: rw, r: rw, w: rw}
}

// NewEncoder creates a send-only codec.
func NewEncoder(w io.Writer) *Codec {
	return &Codec{w: w}
}

// NewDecoder creates a receive-only codec.
func NewDecoder(r io.Reader) *Codec {
	return &Codec{r: r}
}

// Send writes hdr followed by payload (which may be nil if hdr.Size is 0).
// Short writes are retried until the whole frame is written or an error
// occurs, mirroring the original server's write-loop discipline over a
// possibly-fragmenting stream socket.
func (c *Codec) Send(hdr *Header, payload []byte) error {
	hdr.Size = uint16(len(payload))

	var buf [HeaderSize]byte
	buf[0] = byte(hdr.Type)
	buf[1] = hdr.ID
	buf[2] = byte(hdr.Role)
	binary.BigEndian.PutUint16(buf[3:5], hdr.Size)
	binary.BigEndian.PutUint32(buf[5:9], hdr.TimestampSec)
	binary.BigEndian.PutUint32(buf[9:13], hdr.TimestampNsec)
	// buf[13:16] reserved, left zero.

	if err := writeFull(c.w, buf[:]); err != nil {
		return fmt.Errorf("writing packet header: %w", err)
	}
	if hdr.Size > 0 {
		if err := writeFull(c.w, payload); err != nil {
			return fmt.Errorf("writing packet payload: %w", err)
		}
	}
	return nil
}

// Recv blocks until a full packet has been received. The returned payload
// is nil if the packet carried no payload.
func (c *Codec) Recv() (*Header, []byte, error) {
	var buf [HeaderSize]byte
	if err := readFull(c.r, buf[:]); err != nil {
		return nil, nil, err
	}

	hdr := &Header{
		Type:          MessageType(buf[0]),
		ID:            buf[1],
		Role:          Role(buf[2]),
		Size:          binary.BigEndian.Uint16(buf[3:5]),
		TimestampSec:  binary.BigEndian.Uint32(buf[5:9]),
		TimestampNsec: binary.BigEndian.Uint32(buf[9:13]),
	}

	if hdr.Size == 0 {
		return hdr, nil, nil
	}

	payload := make([]byte, hdr.Size)
	if err := readFull(c.r, payload); err != nil {
		return nil, nil, fmt.Errorf("reading packet payload: %w", err)
	}
	return hdr, payload, nil
}

// writeFull writes all of buf, retrying on short writes.
func writeFull(w io.Writer, buf []byte) error {
	written := 0
	for written < len(buf) {
		n, err := w.Write(buf[written:])
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}

// readFull reads exactly len(buf) bytes, retrying on short reads. An EOF
// encountered before any bytes are read is reported as io.EOF; an EOF in
// the middle of a frame is reported as io.ErrUnexpectedEOF.
func readFull(r io.Reader, buf []byte) error {
	n, err := io.ReadFull(r, buf)
	if err != nil {
		if n == 0 && err == io.EOF {
			return io.EOF
		}
		return err
	}
	return nil
}
