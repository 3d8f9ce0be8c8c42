package layout

import (
	"github.com/x64dbg/bridge/internal/abi"
	"go.bytecodealliance.org/wit"
)

// Info is the computed layout of a type.
type Info struct {
	FieldOffs map[string]uint32
	Size      uint32
	Align     uint32
}

// Offset returns the offset of the named field, panicking on an unknown
// name since schemas are static.
func (i Info) Offset(field string) uint32 {
	off, ok := i.FieldOffs[field]
	if !ok {
		panic("layout: unknown field " + field)
	}
	return off
}

type Calculator struct {
	cache map[*wit.TypeDef]Info
}

func NewCalculator() *Calculator {
	return &Calculator{
		cache: make(map[*wit.TypeDef]Info),
	}
}

func (c *Calculator) Calculate(t wit.Type) Info {
	switch typ := t.(type) {
	case wit.U8, wit.S8, wit.Bool:
		return Info{Size: 1, Align: 1}
	case wit.U16, wit.S16:
		return Info{Size: 2, Align: 2}
	case wit.U32, wit.S32, wit.F32:
		return Info{Size: 4, Align: 4}
	case wit.U64, wit.S64, wit.F64:
		return Info{Size: 8, Align: 8}
	case *wit.TypeDef:
		return c.calculateTypeDef(typ)
	default:
		return Info{Size: 0, Align: 1}
	}
}

func (c *Calculator) calculateTypeDef(t *wit.TypeDef) Info {
	if cached, ok := c.cache[t]; ok {
		return cached
	}

	var info Info

	switch kind := t.Kind.(type) {
	case *wit.Record:
		info = c.calculateRecord(kind)
	case wit.Type:
		info = c.Calculate(kind)
	default:
		info = Info{Size: 0, Align: 1}
	}

	c.cache[t] = info
	return info
}

func (c *Calculator) calculateRecord(r *wit.Record) Info {
	if len(r.Fields) == 0 {
		return Info{Size: 0, Align: 1}
	}

	fieldOffs := make(map[string]uint32, len(r.Fields))
	maxAlign := uint32(1)
	offset := uint32(0)

	for _, field := range r.Fields {
		fieldLayout := c.Calculate(field.Type)

		offset = abi.AlignTo(offset, fieldLayout.Align)
		fieldOffs[field.Name] = offset

		if fieldLayout.Align > maxAlign {
			maxAlign = fieldLayout.Align
		}

		offset += fieldLayout.Size
	}

	totalSize := abi.AlignTo(offset, maxAlign)

	return Info{
		Size:      totalSize,
		Align:     maxAlign,
		FieldOffs: fieldOffs,
	}
}

// Record builds a named record schema.
func Record(name string, fields ...wit.Field) *wit.TypeDef {
	return &wit.TypeDef{
		Name: &name,
		Kind: &wit.Record{Fields: fields},
	}
}

// Field builds one record field.
func Field(name string, t wit.Type) wit.Field {
	return wit.Field{Name: name, Type: t}
}
