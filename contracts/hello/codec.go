package hello

import (
	"encoding/binary"
	"fmt"

	"github.com/govm-net/hellokv/core"
)

// StateCodecVersion is the first byte of every encoded state record.
const StateCodecVersion byte = 1

// Wire layout, all integers little endian:
//
//	state record  = version:u8 str(owner) str(meta.version) str(meta.owner) u64(meta.created_at) str(data prefix)
//	entry key     = data prefix ++ str(key)
//	entry value   = str(value)
//	str(x)        = u32(len(x)) ++ x
func encodeState(s *State) []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, StateCodecVersion)
	buf = appendString(buf, string(s.Owner))
	buf = appendString(buf, s.Metadata.Version)
	buf = appendString(buf, string(s.Metadata.Owner))
	buf = binary.LittleEndian.AppendUint64(buf, s.Metadata.CreatedAt)
	buf = appendString(buf, string(s.data.prefix))
	return buf
}

func decodeState(data []byte) (*State, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty state record", core.ErrCorruptState)
	}
	if data[0] != StateCodecVersion {
		return nil, fmt.Errorf("%w: %d", core.ErrUnsupportedEncoding, data[0])
	}
	r := reader{buf: data[1:]}
	owner := r.string()
	version := r.string()
	metaOwner := r.string()
	createdAt := r.uint64()
	prefix := r.string()
	if r.err != nil {
		return nil, r.err
	}
	if len(r.buf) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", core.ErrCorruptState, len(r.buf))
	}
	return &State{
		Owner: core.AccountID(owner),
		Metadata: Metadata{
			Version:   version,
			Owner:     core.AccountID(metaOwner),
			CreatedAt: createdAt,
		},
		data: Map{prefix: []byte(prefix)},
	}, nil
}

func encodeEntryKey(prefix []byte, key string) []byte {
	out := make([]byte, 0, len(prefix)+4+len(key))
	out = append(out, prefix...)
	return appendString(out, key)
}

func encodeEntryValue(value string) []byte {
	return appendString(make([]byte, 0, 4+len(value)), value)
}

func decodeEntryValue(data []byte) (string, error) {
	r := reader{buf: data}
	v := r.string()
	if r.err != nil {
		return "", r.err
	}
	if len(r.buf) != 0 {
		return "", fmt.Errorf("%w: %d trailing bytes in entry", core.ErrCorruptState, len(r.buf))
	}
	return v, nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// reader keeps the first error and turns every later read into a no-op
type reader struct {
	buf []byte
	err error
}

func (r *reader) uint64() uint64 {
	if r.err != nil {
		return 0
	}
	if len(r.buf) < 8 {
		r.err = fmt.Errorf("%w: truncated u64", core.ErrCorruptState)
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf)
	r.buf = r.buf[8:]
	return v
}

func (r *reader) string() string {
	if r.err != nil {
		return ""
	}
	if len(r.buf) < 4 {
		r.err = fmt.Errorf("%w: truncated length", core.ErrCorruptState)
		return ""
	}
	n := binary.LittleEndian.Uint32(r.buf)
	r.buf = r.buf[4:]
	if uint64(len(r.buf)) < uint64(n) {
		r.err = fmt.Errorf("%w: truncated string", core.ErrCorruptState)
		return ""
	}
	s := string(r.buf[:n])
	r.buf = r.buf[n:]
	return s
}
