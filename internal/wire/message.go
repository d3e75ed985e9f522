// Package wire defines the messages exchanged between ring neighbours
// and their framed binary encoding (§6).
package wire

import (
	"time"

	"github.com/satcoord/satring/internal/task"
)

// Kind identifies a message variant on the wire.
type Kind uint8

const (
	KindRequest Kind = iota + 1
	KindRespond
	KindResponseNack
	KindImageData
	KindProcessedData
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "REQUEST"
	case KindRespond:
		return "RESPOND"
	case KindResponseNack:
		return "RESPONSE-NACK"
	case KindImageData:
		return "IMAGE-DATA"
	case KindProcessedData:
		return "PROCESSED-DATA"
	default:
		return "UNKNOWN"
	}
}

// Message is implemented by every variant in this package. LastSenderID
// is rewritten by the Transmitter on every hop (§4.3 step 3); FirstHop
// reports the explicit next-hop carried by the message, if any.
type Message interface {
	Kind() Kind
	LastSenderID() uint64
	SetLastSenderID(uint64)
	FirstHop() (id uint64, ok bool)
}

// Request is broadcast to both neighbours when the originator cannot
// self-admit a task.
type Request struct {
	TaskID     task.ID
	Deadline   time.Time
	LastSender uint64
}

func (m *Request) Kind() Kind                { return KindRequest }
func (m *Request) LastSenderID() uint64      { return m.LastSender }
func (m *Request) SetLastSenderID(id uint64) { m.LastSender = id }
func (m *Request) FirstHop() (uint64, bool)  { return 0, false }

// Respond is sent by a peer that has admitted a task, back toward the
// requester. FirstHopID is always present: the requester's
// lastSenderID at the time the REQUEST was received.
type Respond struct {
	TaskID      task.ID
	SourceSatID uint64
	FirstHopID  uint64
	LastSender  uint64
}

func (m *Respond) Kind() Kind                { return KindRespond }
func (m *Respond) LastSenderID() uint64      { return m.LastSender }
func (m *Respond) SetLastSenderID(id uint64) { m.LastSender = id }
func (m *Respond) FirstHop() (uint64, bool)  { return m.FirstHopID, true }

// ResponseNack cancels a previously sent Respond that has been
// superseded.
type ResponseNack struct {
	TaskID     task.ID
	LastSender uint64
}

func (m *ResponseNack) Kind() Kind                { return KindResponseNack }
func (m *ResponseNack) LastSenderID() uint64      { return m.LastSender }
func (m *ResponseNack) SetLastSenderID(id uint64) { m.LastSender = id }
func (m *ResponseNack) FirstHop() (uint64, bool)  { return 0, false }

// ImageData carries the full task payload to the chosen executor.
// FirstHopID is set by the ResponseCollector when delegating.
// MessageRouter forwards a relayed frame with the field unchanged; the
// Transmitter routes by the outbound envelope's NextHop, not by this
// field.
type ImageData struct {
	Task       task.Task
	FirstHopID *uint64
	LastSender uint64
}

func (m *ImageData) Kind() Kind           { return KindImageData }
func (m *ImageData) LastSenderID() uint64 { return m.LastSender }
func (m *ImageData) SetLastSenderID(id uint64) {
	m.LastSender = id
}
func (m *ImageData) FirstHop() (uint64, bool) {
	if m.FirstHopID == nil {
		return 0, false
	}
	return *m.FirstHopID, true
}

// ProcessedData carries a detection result toward the ground-closest
// satellite. FirstHopID is absent when the originating TaskExecutor
// determined self is already ground-closest, in which case the
// Transmitter sends directly to the ground station endpoint.
type ProcessedData struct {
	Detection  task.Detection
	FirstHopID *uint64
	LastSender uint64
}

func (m *ProcessedData) Kind() Kind           { return KindProcessedData }
func (m *ProcessedData) LastSenderID() uint64 { return m.LastSender }
func (m *ProcessedData) SetLastSenderID(id uint64) {
	m.LastSender = id
}
func (m *ProcessedData) FirstHop() (uint64, bool) {
	if m.FirstHopID == nil {
		return 0, false
	}
	return *m.FirstHopID, true
}
