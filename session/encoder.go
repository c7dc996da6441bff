package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const entryFormatVersionCurrent = 1

// ErrEntryCorrupt is returned when stored metadata cannot be decoded.
var ErrEntryCorrupt = errors.New("session entry corrupt")

// Encode serialises e as: version, then length-prefixed account id, token
// id and role, then big-endian issued/expires unix seconds.
func Encode(e *Entry) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(entryFormatVersionCurrent)

	for _, field := range []struct {
		name  string
		value string
	}{
		{"accountID", e.AccountID},
		{"tokenID", e.TokenID},
		{"role", e.Role},
	} {
		if len(field.value) > 255 {
			return nil, errors.New(field.name + " too long")
		}
		buf.WriteByte(byte(len(field.value)))
		buf.WriteString(field.value)
	}

	if err := binary.Write(&buf, binary.BigEndian, e.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, e.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func Decode(data []byte) (*Entry, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrEntryCorrupt
	}
	if version != entryFormatVersionCurrent {
		return nil, ErrEntryCorrupt
	}

	readString := func() (string, error) {
		n, err := reader.ReadByte()
		if err != nil {
			return "", ErrEntryCorrupt
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return "", ErrEntryCorrupt
		}
		return string(raw), nil
	}

	e := &Entry{}
	if e.AccountID, err = readString(); err != nil {
		return nil, err
	}
	if e.TokenID, err = readString(); err != nil {
		return nil, err
	}
	if e.Role, err = readString(); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &e.IssuedAt); err != nil {
		return nil, ErrEntryCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &e.ExpiresAt); err != nil {
		return nil, ErrEntryCorrupt
	}
	if reader.Len() != 0 {
		return nil, ErrEntryCorrupt
	}

	return e, nil
}
