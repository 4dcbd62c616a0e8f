package protocol

import (
	"Go2CrossCount/internal/model"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Kind tells the three stream messages apart.
type Kind string

const (
	KindHeader Kind = "header"
	KindFrame  Kind = "frame"
	KindEOS    Kind = "eos"
	KindBucket Kind = "bucket"
)

// Message is one decoded element of a snapshot stream.
type Message struct {
	Kind  Kind
	Info  model.StreamInfo     // set for KindHeader
	Frame *model.FrameSnapshot // set for KindFrame
}

// BucketMessage is a flushed bucket tagged with the run that produced it.
type BucketMessage struct {
	RunID  string
	Bucket *model.Bucket
}

// HeaderMessage builds a stream header message.
func HeaderMessage(info model.StreamInfo) *Message {
	return &Message{Kind: KindHeader, Info: info}
}

// FrameMessage builds a frame message.
func FrameMessage(frame *model.FrameSnapshot) *Message {
	return &Message{Kind: KindFrame, Frame: frame}
}

// EOSMessage builds the end-of-stream marker.
func EOSMessage() *Message {
	return &Message{Kind: KindEOS}
}

// Marshal serializes a stream message to protobuf binary format.
func Marshal(msg *Message) ([]byte, error) {
	s, err := msg.toStruct()
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// Unmarshal decodes a protobuf-encoded stream message.
func Unmarshal(data []byte) (*Message, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal protobuf: %w", err)
	}
	return messageFromStruct(&s)
}

// UnmarshalJSON decodes one JSON line of a recording. The "type" field is
// optional there: a line with "frame_rate" is a header, a line with
// "eos": true ends the stream and anything else is a frame.
func UnmarshalJSON(data []byte) (*Message, error) {
	var s structpb.Struct
	if err := protojson.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}
	return messageFromStruct(&s)
}

// MarshalJSON serializes a stream message as a single JSON line.
func MarshalJSON(msg *Message) ([]byte, error) {
	s, err := msg.toStruct()
	if err != nil {
		return nil, err
	}
	return protojson.MarshalOptions{Multiline: false}.Marshal(s)
}

func (m *Message) toStruct() (*structpb.Struct, error) {
	fields := map[string]interface{}{"type": string(m.Kind)}
	switch m.Kind {
	case KindHeader:
		fields["frame_rate"] = m.Info.FrameRate
		fields["width"] = m.Info.Width
		fields["height"] = m.Info.Height
	case KindFrame:
		counts := make(map[string]interface{})
		if m.Frame != nil {
			for class, c := range m.Frame.Counts {
				counts[class] = map[string]interface{}{"in": c.In, "out": c.Out}
			}
		}
		fields["counts"] = counts
	case KindEOS:
		fields["eos"] = true
	default:
		return nil, fmt.Errorf("unknown message kind: '%s'", m.Kind)
	}
	return structpb.NewStruct(fields)
}

func messageFromStruct(s *structpb.Struct) (*Message, error) {
	f := s.GetFields()
	kind := Kind(f["type"].GetStringValue())
	if kind == "" {
		switch {
		case f["eos"].GetBoolValue():
			kind = KindEOS
		case f["frame_rate"] != nil:
			kind = KindHeader
		default:
			kind = KindFrame
		}
	}

	switch kind {
	case KindHeader:
		width, err := toInt(f["width"])
		if err != nil {
			return nil, fmt.Errorf("invalid header width: %w", err)
		}
		height, err := toInt(f["height"])
		if err != nil {
			return nil, fmt.Errorf("invalid header height: %w", err)
		}
		return HeaderMessage(model.StreamInfo{
			FrameRate: f["frame_rate"].GetNumberValue(),
			Width:     width,
			Height:    height,
		}), nil
	case KindFrame:
		frame := &model.FrameSnapshot{Counts: make(map[string]model.ClassCounts)}
		for class, v := range f["counts"].GetStructValue().GetFields() {
			pair := v.GetStructValue().GetFields()
			in, err := toCount(pair["in"])
			if err != nil {
				return nil, fmt.Errorf("invalid IN count for class '%s': %w", class, err)
			}
			out, err := toCount(pair["out"])
			if err != nil {
				return nil, fmt.Errorf("invalid OUT count for class '%s': %w", class, err)
			}
			frame.Counts[class] = model.ClassCounts{In: in, Out: out}
		}
		return FrameMessage(frame), nil
	case KindEOS:
		return EOSMessage(), nil
	default:
		return nil, fmt.Errorf("unknown message type: '%s'", kind)
	}
}

// MarshalBucket serializes a flushed bucket to protobuf binary format.
func MarshalBucket(runID string, b *model.Bucket) ([]byte, error) {
	classes := make([]interface{}, len(b.Classes))
	for i, ct := range b.Classes {
		classes[i] = map[string]interface{}{
			"class":    ct.Class,
			"total":    ct.Total,
			"interval": ct.Interval,
		}
	}
	s, err := structpb.NewStruct(map[string]interface{}{
		"type":    string(KindBucket),
		"run_id":  runID,
		"index":   b.Index,
		"partial": b.Partial,
		"frames":  b.Frames,
		"classes": classes,
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// UnmarshalBucket decodes a bucket produced by MarshalBucket.
func UnmarshalBucket(data []byte) (*BucketMessage, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal protobuf: %w", err)
	}
	f := s.GetFields()
	if kind := Kind(f["type"].GetStringValue()); kind != KindBucket {
		return nil, fmt.Errorf("unexpected message type: '%s'", kind)
	}

	index, err := toInt(f["index"])
	if err != nil {
		return nil, fmt.Errorf("invalid bucket index: %w", err)
	}
	frames, err := toInt(f["frames"])
	if err != nil {
		return nil, fmt.Errorf("invalid bucket frames: %w", err)
	}
	b := &model.Bucket{
		Index:   index,
		Partial: f["partial"].GetBoolValue(),
		Frames:  frames,
	}
	for _, v := range f["classes"].GetListValue().GetValues() {
		cf := v.GetStructValue().GetFields()
		total, err := toCount(cf["total"])
		if err != nil {
			return nil, fmt.Errorf("invalid total: %w", err)
		}
		interval, err := toCount(cf["interval"])
		if err != nil {
			return nil, fmt.Errorf("invalid interval: %w", err)
		}
		b.Classes = append(b.Classes, model.ClassTotal{
			Class:    cf["class"].GetStringValue(),
			Total:    total,
			Interval: interval,
		})
	}
	return &BucketMessage{RunID: f["run_id"].GetStringValue(), Bucket: b}, nil
}

// toCount reads a non-negative integral number. Missing values are zero.
func toCount(v *structpb.Value) (uint64, error) {
	if v == nil {
		return 0, nil
	}
	n := v.GetNumberValue()
	if n < 0 || n != math.Trunc(n) || n > 1<<53 {
		return 0, fmt.Errorf("not a count: %v", n)
	}
	return uint64(n), nil
}

func toInt(v *structpb.Value) (int, error) {
	n, err := toCount(v)
	return int(n), err
}
