package wire

import (
	"encoding/binary"
	"fmt"
)

// byteWriter accumulates length-prefixed fields the way QDataStream does,
// just without the stream abstraction: every field is self-describing so
// decode only ever needs to walk forward.
type byteWriter struct {
	buf []byte
}

func (w *byteWriter) putUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *byteWriter) putUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *byteWriter) putBool(v bool) {
	if v {
		w.putUint8(1)
	} else {
		w.putUint8(0)
	}
}

func (w *byteWriter) putInt32(v int32) {
	w.putUint32(uint32(v))
}

func (w *byteWriter) putBytes(v []byte) {
	w.putUint32(uint32(len(v)))
	w.buf = append(w.buf, v...)
}

func (w *byteWriter) putString(v string) {
	w.putBytes([]byte(v))
}

func (w *byteWriter) putStringList(v []string) {
	w.putUint32(uint32(len(v)))
	for _, s := range v {
		w.putString(s)
	}
}

func (w *byteWriter) bytes() []byte { return w.buf }

// byteReader is the mirror-image streaming cursor over a decoded payload.
type byteReader struct {
	buf []byte
	off int
}

func newByteReader(b []byte) *byteReader { return &byteReader{buf: b} }

func (r *byteReader) need(n int) error {
	if len(r.buf)-r.off < n {
		return fmt.Errorf("wire: payload truncated: need %d bytes, have %d", n, len(r.buf)-r.off)
	}
	return nil
}

func (r *byteReader) getUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off : r.off+4])
	r.off += 4
	return v, nil
}

func (r *byteReader) getInt32() (int32, error) {
	v, err := r.getUint32()
	return int32(v), err
}

func (r *byteReader) getUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *byteReader) getBool() (bool, error) {
	v, err := r.getUint8()
	return v != 0, err
}

func (r *byteReader) getBytes() ([]byte, error) {
	n, err := r.getUint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	v := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	copy(out, v)
	return out, nil
}

func (r *byteReader) getString() (string, error) {
	b, err := r.getBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *byteReader) getStringList() ([]string, error) {
	n, err := r.getUint32()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := r.getString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
