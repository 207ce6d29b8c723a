package pagination

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/quillwork/worksheets-backend/pkg/errors"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// cursor wire form: 8 bytes big-endian unix nanos followed by the 16 id bytes.
const cursorLen = 8 + 16

var errCursorLength = errors.New("cursor has wrong length")

// Params holds a requested page size and the opaque cursor from the previous page.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor marks the last row of the previous page in (created_at DESC, id DESC) order.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// FromQuery reads `limit` and `cursor`. A present limit must be an integer in
// [1, MaxLimit]; an absent one becomes DefaultLimit.
func FromQuery(values url.Values) (Params, error) {
	params := Params{Limit: DefaultLimit, Cursor: strings.TrimSpace(values.Get("cursor"))}
	raw := strings.TrimSpace(values.Get("limit"))
	if raw == "" {
		return params, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return Params{}, pkgerrors.New(pkgerrors.CodeValidation, "limit must be numeric").
			WithDetails(map[string]any{"field": "limit"})
	}
	if limit < 1 || limit > MaxLimit {
		return Params{}, pkgerrors.New(pkgerrors.CodeValidation, "limit out of range").
			WithDetails(map[string]any{"field": "limit", "min": 1, "max": MaxLimit})
	}
	params.Limit = limit
	return params, nil
}

// NormalizeLimit clamps limit into [1, MaxLimit], using DefaultLimit for unset values.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

func EncodeCursor(c Cursor) string {
	buf := make([]byte, cursorLen)
	binary.BigEndian.PutUint64(buf[:8], uint64(c.CreatedAt.UTC().UnixNano()))
	copy(buf[8:], c.ID[:])
	return base64.RawURLEncoding.EncodeToString(buf)
}

// ParseCursor reverses EncodeCursor; a blank value means "first page" and yields nil.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	buf, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, err
	}
	if len(buf) != cursorLen {
		return nil, errCursorLength
	}
	id, err := uuid.FromBytes(buf[8:])
	if err != nil {
		return nil, err
	}
	nanos := int64(binary.BigEndian.Uint64(buf[:8]))
	return &Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: id}, nil
}
