// Package wireframe implements the pool's length-prefixed, CRC32-checked
// framing over the stdin/stdout pipes between supervisor and worker.
// Framing is deliberately separate from the embedder's codec: a frame's
// task_id prefix sits outside the codec-encoded body so a task can
// always be attributed to the right Handle even when the body fails to
// decode.
package wireframe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// ErrChecksumMismatch means a frame's trailing CRC32 did not match its
// contents — the frame is corrupt and must not be trusted.
var ErrChecksumMismatch = errors.New("wireframe: checksum mismatch")

// maxFrameLen guards against a corrupt or hostile length prefix causing
// an unbounded allocation.
const maxFrameLen = 256 << 20

// WriteFrame writes an untagged frame: a 4-byte big-endian length
// (covering payload+checksum), the payload, then a 4-byte CRC32 (IEEE)
// trailer over the payload. Grounded on the teacher's WAL checksum
// discipline (hash/crc32.ChecksumIEEE).
func WriteFrame(w io.Writer, payload []byte) error {
	sum := crc32.ChecksumIEEE(payload)
	total := len(payload) + 4
	header := make([]byte, 4+total)
	binary.BigEndian.PutUint32(header[0:4], uint32(total))
	copy(header[4:], payload)
	binary.BigEndian.PutUint32(header[4+len(payload):], sum)
	_, err := w.Write(header)
	return err
}

// ReadFrame reads one untagged frame written by WriteFrame, verifying
// its checksum.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	total := binary.BigEndian.Uint32(lenBuf[:])
	if total < 4 || total > maxFrameLen {
		return nil, fmt.Errorf("wireframe: implausible frame length %d", total)
	}
	body := make([]byte, total)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	payload := body[:len(body)-4]
	wantSum := binary.BigEndian.Uint32(body[len(body)-4:])
	if crc32.ChecksumIEEE(payload) != wantSum {
		return nil, ErrChecksumMismatch
	}
	return payload, nil
}

// WriteTaggedFrame writes a frame carrying an 8-byte big-endian task_id
// ahead of the codec-encoded body, both covered by one trailing CRC32.
// The task_id lives outside the codec's purview so a Handle can still
// be attributed correctly even when body decoding fails downstream.
func WriteTaggedFrame(w io.Writer, taskID uint64, body []byte) error {
	payload := make([]byte, 8+len(body))
	binary.BigEndian.PutUint64(payload[0:8], taskID)
	copy(payload[8:], body)
	return WriteFrame(w, payload)
}

// ReadTaggedFrame reads a frame written by WriteTaggedFrame, returning
// the task_id and the remaining body separately.
func ReadTaggedFrame(r io.Reader) (taskID uint64, body []byte, err error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return 0, nil, err
	}
	if len(payload) < 8 {
		return 0, nil, fmt.Errorf("wireframe: tagged frame too short (%d bytes)", len(payload))
	}
	taskID = binary.BigEndian.Uint64(payload[0:8])
	body = payload[8:]
	return taskID, body, nil
}
