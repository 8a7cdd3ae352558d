package connect

import (
	"encoding/json"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrOutOfRange is returned for millisecond values that do not fit a time.Duration.
var ErrOutOfRange = errors.New("milliseconds out of range")

const maxMillis = math.MaxInt64 / int64(time.Millisecond)

// DurationFromMillis converts ms to a duration, rejecting values that would overflow.
func DurationFromMillis(ms int64) (time.Duration, error) {
	if ms > maxMillis || ms < -maxMillis {
		return 0, errors.Wrapf(ErrOutOfRange, "ms=%d", ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// toStruct converts a JSON-tagged value into a Struct message.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode message")
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.Wrap(err, "failed to encode message")
	}
	return structpb.NewStruct(fields)
}

// Decode fills out, a JSON-tagged value, from a Struct message.
func Decode(s *structpb.Struct, out any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "failed to decode message")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "failed to decode message")
	}
	return nil
}
