package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/satcoord/satring/internal/task"
)

// ErrTruncated is returned by Decode when the buffer ends before a
// fixed-width field has been fully read.
var ErrTruncated = errors.New("wire: truncated frame")

// taskIDWidth is the on-wire width of a task identifier: 56 bits
// packed into 7 bytes, big-endian, per §6's field catalog.
const taskIDWidth = 7

func putTaskID(buf *bytes.Buffer, id task.ID) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], id.Uint64())
	// Drop the top byte: taskID is a 56-bit quantity.
	buf.Write(tmp[1:])
}

func getTaskID(r *bytes.Reader) (task.ID, error) {
	var tmp [8]byte
	if _, err := readFull(r, tmp[1:]); err != nil {
		return 0, err
	}
	return task.ID(binary.BigEndian.Uint64(tmp[:])), nil
}

func putUint64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func getUint64(r *bytes.Reader) (uint64, error) {
	var tmp [8]byte
	if _, err := readFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(tmp[:]), nil
}

func putFloat64(buf *bytes.Buffer, v float64) {
	putUint64(buf, math.Float64bits(v))
}

func getFloat64(r *bytes.Reader) (float64, error) {
	bits, err := getUint64(r)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

func putUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func getUint32(r *bytes.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := readFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(tmp[:]), nil
}

func putUint16(buf *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	buf.Write(tmp[:])
}

func getUint16(r *bytes.Reader) (uint16, error) {
	var tmp [2]byte
	if _, err := readFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(tmp[:]), nil
}

func putString(buf *bytes.Buffer, s string) {
	putUint16(buf, uint16(len(s)))
	buf.WriteString(s)
}

func getString(r *bytes.Reader) (string, error) {
	n, err := getUint16(r)
	if err != nil {
		return "", err
	}
	tmp := make([]byte, n)
	if _, err := readFull(r, tmp); err != nil {
		return "", err
	}
	return string(tmp), nil
}

func putBytes(buf *bytes.Buffer, b []byte) {
	putUint32(buf, uint32(len(b)))
	buf.Write(b)
}

func getBytes(r *bytes.Reader) ([]byte, error) {
	n, err := getUint32(r)
	if err != nil {
		return nil, err
	}
	tmp := make([]byte, n)
	if _, err := readFull(r, tmp); err != nil {
		return nil, err
	}
	return tmp, nil
}

func putComplex(buf *bytes.Buffer, c complex128) {
	putFloat64(buf, real(c))
	putFloat64(buf, imag(c))
}

func getComplex(r *bytes.Reader) (complex128, error) {
	re, err := getFloat64(r)
	if err != nil {
		return 0, err
	}
	im, err := getFloat64(r)
	if err != nil {
		return 0, err
	}
	return complex(re, im), nil
}

func putOptionalHop(buf *bytes.Buffer, hop *uint64) {
	if hop == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	putUint64(buf, *hop)
}

func getOptionalHop(r *bytes.Reader) (*uint64, error) {
	var flag [1]byte
	if _, err := readFull(r, flag[:]); err != nil {
		return nil, err
	}
	if flag[0] == 0 {
		return nil, nil
	}
	v, err := getUint64(r)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func readFull(r *bytes.Reader, p []byte) (int, error) {
	n, err := r.Read(p)
	if err != nil || n < len(p) {
		return n, ErrTruncated
	}
	return n, nil
}

// Encode serialises a Message into its opaque on-wire body (everything
// after the 4-byte length prefix, including the 1-byte kind tag).
func Encode(m Message) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteByte(byte(m.Kind()))

	switch v := m.(type) {
	case *Request:
		putTaskID(buf, v.TaskID)
		putFloat64(buf, float64(v.Deadline.Unix())+float64(v.Deadline.Nanosecond())/1e9)
		putUint64(buf, v.LastSender)
	case *Respond:
		putTaskID(buf, v.TaskID)
		putUint64(buf, v.SourceSatID)
		putUint64(buf, v.FirstHopID)
		putUint64(buf, v.LastSender)
	case *ResponseNack:
		putTaskID(buf, v.TaskID)
		putUint64(buf, v.LastSender)
	case *ImageData:
		putTaskID(buf, v.Task.ID)
		putString(buf, v.Task.FileName)
		putComplex(buf, v.Task.Location)
		putFloat64(buf, unixSeconds(v.Task.Created))
		putFloat64(buf, unixSeconds(v.Task.Deadline))
		putUint32(buf, uint32(v.Task.Image.Width))
		putUint32(buf, uint32(v.Task.Image.Height))
		putBytes(buf, v.Task.Image.Data)
		putOptionalHop(buf, v.FirstHopID)
		putUint64(buf, v.LastSender)
	case *ProcessedData:
		putBytes(buf, v.Detection.CroppedImage)
		putComplex(buf, v.Detection.Location)
		putFloat64(buf, unixSeconds(v.Detection.Timestamp))
		putString(buf, v.Detection.FileName)
		putFloat64(buf, v.Detection.BoundingBox.X0)
		putFloat64(buf, v.Detection.BoundingBox.Y0)
		putFloat64(buf, v.Detection.BoundingBox.X1)
		putFloat64(buf, v.Detection.BoundingBox.Y1)
		putOptionalHop(buf, v.FirstHopID)
		putUint64(buf, v.LastSender)
	default:
		return nil, errors.Errorf("wire: unknown message type %T", m)
	}
	return buf.Bytes(), nil
}

// Decode parses a message body (as produced by Encode) back into its
// concrete type. Malformed or truncated input returns ErrTruncated or a
// wrapped decode error; callers drop the frame (§7).
func Decode(body []byte) (Message, error) {
	if len(body) == 0 {
		return nil, errors.New("wire: empty body")
	}
	kind := Kind(body[0])
	r := bytes.NewReader(body[1:])

	switch kind {
	case KindRequest:
		id, err := getTaskID(r)
		if err != nil {
			return nil, errors.Wrap(err, "REQUEST taskID")
		}
		deadline, err := getFloat64(r)
		if err != nil {
			return nil, errors.Wrap(err, "REQUEST deadline")
		}
		sender, err := getUint64(r)
		if err != nil {
			return nil, errors.Wrap(err, "REQUEST lastSenderID")
		}
		return &Request{TaskID: id, Deadline: fromUnixSeconds(deadline), LastSender: sender}, nil

	case KindRespond:
		id, err := getTaskID(r)
		if err != nil {
			return nil, errors.Wrap(err, "RESPOND taskID")
		}
		source, err := getUint64(r)
		if err != nil {
			return nil, errors.Wrap(err, "RESPOND sourceSatID")
		}
		firstHop, err := getUint64(r)
		if err != nil {
			return nil, errors.Wrap(err, "RESPOND firstHopID")
		}
		sender, err := getUint64(r)
		if err != nil {
			return nil, errors.Wrap(err, "RESPOND lastSenderID")
		}
		return &Respond{TaskID: id, SourceSatID: source, FirstHopID: firstHop, LastSender: sender}, nil

	case KindResponseNack:
		id, err := getTaskID(r)
		if err != nil {
			return nil, errors.Wrap(err, "RESPONSE-NACK taskID")
		}
		sender, err := getUint64(r)
		if err != nil {
			return nil, errors.Wrap(err, "RESPONSE-NACK lastSenderID")
		}
		return &ResponseNack{TaskID: id, LastSender: sender}, nil

	case KindImageData:
		id, err := getTaskID(r)
		if err != nil {
			return nil, errors.Wrap(err, "IMAGE-DATA taskID")
		}
		fileName, err := getString(r)
		if err != nil {
			return nil, errors.Wrap(err, "IMAGE-DATA fileName")
		}
		loc, err := getComplex(r)
		if err != nil {
			return nil, errors.Wrap(err, "IMAGE-DATA location")
		}
		created, err := getFloat64(r)
		if err != nil {
			return nil, errors.Wrap(err, "IMAGE-DATA timestamp")
		}
		deadline, err := getFloat64(r)
		if err != nil {
			return nil, errors.Wrap(err, "IMAGE-DATA deadline")
		}
		width, err := getUint32(r)
		if err != nil {
			return nil, errors.Wrap(err, "IMAGE-DATA width")
		}
		height, err := getUint32(r)
		if err != nil {
			return nil, errors.Wrap(err, "IMAGE-DATA height")
		}
		data, err := getBytes(r)
		if err != nil {
			return nil, errors.Wrap(err, "IMAGE-DATA image bytes")
		}
		firstHop, err := getOptionalHop(r)
		if err != nil {
			return nil, errors.Wrap(err, "IMAGE-DATA firstHopID")
		}
		sender, err := getUint64(r)
		if err != nil {
			return nil, errors.Wrap(err, "IMAGE-DATA lastSenderID")
		}
		t := task.Task{
			ID:       id,
			Created:  fromUnixSeconds(created),
			Deadline: fromUnixSeconds(deadline),
			Location: loc,
			FileName: fileName,
			Image:    task.Image{Width: int(width), Height: int(height), Data: data},
		}
		return &ImageData{Task: t, FirstHopID: firstHop, LastSender: sender}, nil

	case KindProcessedData:
		cropped, err := getBytes(r)
		if err != nil {
			return nil, errors.Wrap(err, "PROCESSED-DATA image bytes")
		}
		loc, err := getComplex(r)
		if err != nil {
			return nil, errors.Wrap(err, "PROCESSED-DATA location")
		}
		ts, err := getFloat64(r)
		if err != nil {
			return nil, errors.Wrap(err, "PROCESSED-DATA timestamp")
		}
		fileName, err := getString(r)
		if err != nil {
			return nil, errors.Wrap(err, "PROCESSED-DATA fileName")
		}
		x0, err := getFloat64(r)
		if err != nil {
			return nil, errors.Wrap(err, "PROCESSED-DATA x0")
		}
		y0, err := getFloat64(r)
		if err != nil {
			return nil, errors.Wrap(err, "PROCESSED-DATA y0")
		}
		x1, err := getFloat64(r)
		if err != nil {
			return nil, errors.Wrap(err, "PROCESSED-DATA x1")
		}
		y1, err := getFloat64(r)
		if err != nil {
			return nil, errors.Wrap(err, "PROCESSED-DATA y1")
		}
		firstHop, err := getOptionalHop(r)
		if err != nil {
			return nil, errors.Wrap(err, "PROCESSED-DATA firstHopID")
		}
		sender, err := getUint64(r)
		if err != nil {
			return nil, errors.Wrap(err, "PROCESSED-DATA lastSenderID")
		}
		d := task.Detection{
			CroppedImage: cropped,
			BoundingBox:  task.BoundingBox{X0: x0, Y0: y0, X1: x1, Y1: y1},
			Location:     loc,
			Timestamp:    fromUnixSeconds(ts),
			FileName:     fileName,
		}
		return &ProcessedData{Detection: d, FirstHopID: firstHop, LastSender: sender}, nil
	}
	return nil, errors.Errorf("wire: unknown kind %d", kind)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

func fromUnixSeconds(s float64) time.Time {
	sec := int64(s)
	nsec := int64((s - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
