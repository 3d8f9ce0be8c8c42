package msgqueue

import (
	"fmt"

	"go.bytecodealliance.org/wit"

	"github.com/x64dbg/bridge"
	"github.com/x64dbg/bridge/internal/layout"
	"github.com/x64dbg/bridge/wire"
)

// Message is one queued event or command. Its meaning is defined by Kind.
type Message struct {
	Kind   int32
	Param1 uint64
	Param2 uint64
}

func (m Message) String() string {
	return fmt.Sprintf("msg{kind=%d p1=%#x p2=%#x}", m.Kind, m.Param1, m.Param2)
}

// Discipline selects the receive order.
type Discipline uint8

const (
	// FIFO delivers messages in the order they were sent.
	FIFO Discipline = iota
	// LIFO delivers the most recently sent message first.
	LIFO
)

func (d Discipline) String() string {
	switch d {
	case FIFO:
		return "fifo"
	case LIFO:
		return "lifo"
	default:
		return fmt.Sprintf("discipline(%d)", d)
	}
}

// ParseDiscipline maps "fifo" and "lifo" to a Discipline.
func ParseDiscipline(s string) (Discipline, bool) {
	switch s {
	case "fifo", "FIFO", "":
		return FIFO, true
	case "lifo", "LIFO":
		return LIFO, true
	}
	return 0, false
}

// MessageSchema describes the wire form of Message.
var MessageSchema = layout.Record("message",
	layout.Field("kind", wit.S32{}),
	layout.Field("param1", wit.U64{}),
	layout.Field("param2", wit.U64{}),
)

var messageLayout = wire.Layout(MessageSchema)

// MessageRecordSize is the wire size of a Message.
var MessageRecordSize = messageLayout.Size

type messageCodec struct{}

// Codec encodes Message records for wire lists.
var Codec wire.Codec[Message] = messageCodec{}

func (messageCodec) Name() string  { return "Message" }
func (messageCodec) Size() uint32  { return messageLayout.Size }
func (messageCodec) Align() uint32 { return messageLayout.Align }

func (messageCodec) Load(mem bridge.Memory, addr uint32) (Message, error) {
	kind, err := mem.ReadU32(addr + messageLayout.Offset("kind"))
	if err != nil {
		return Message{}, err
	}
	p1, err := mem.ReadU64(addr + messageLayout.Offset("param1"))
	if err != nil {
		return Message{}, err
	}
	p2, err := mem.ReadU64(addr + messageLayout.Offset("param2"))
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: int32(kind), Param1: p1, Param2: p2}, nil
}

func (messageCodec) Store(mem bridge.Memory, addr uint32, m Message) error {
	if err := mem.WriteU32(addr+messageLayout.Offset("kind"), uint32(m.Kind)); err != nil {
		return err
	}
	if err := mem.WriteU64(addr+messageLayout.Offset("param1"), m.Param1); err != nil {
		return err
	}
	return mem.WriteU64(addr+messageLayout.Offset("param2"), m.Param2)
}
