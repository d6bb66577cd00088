package dataset

import (
	"fmt"
	"time"
)

// Dataset is any tabular input the normalizer can accept. *Frame and Rows are the two
// supported representations.
type Dataset interface {
	NumRows() int
}

// LabelColumn holds one optional label column. Exactly one of Text or Binary is set.
type LabelColumn struct {
	Text   []string
	Binary [][]byte
}

func TextColumn(values ...string) *LabelColumn {
	return &LabelColumn{Text: values}
}

func BinaryColumn(values ...[]byte) *LabelColumn {
	return &LabelColumn{Binary: values}
}

func (c *LabelColumn) Encoding() Encoding {
	if c.Binary != nil {
		return EncodingBinary
	}
	return EncodingText
}

func (c *LabelColumn) Len() int {
	if c.Binary != nil {
		return len(c.Binary)
	}
	return len(c.Text)
}

// Frame is the canonical columnar form of raw block observations.
type Frame struct {
	Slot          []int64
	Epoch         []int64
	EventTime     []time.Time
	PropagationMs []float64
	Labels        map[Field]*LabelColumn
}

func NewFrame() *Frame {
	return &Frame{Labels: make(map[Field]*LabelColumn)}
}

func (f *Frame) NumRows() int {
	if f == nil {
		return 0
	}
	return len(f.Slot)
}

func (f *Frame) Has(field Field) bool {
	_, ok := f.Labels[field]
	return ok
}

func (f *Frame) Schema() Schema {
	var s Schema
	for _, field := range KnownFields {
		if c, ok := f.Labels[field]; ok {
			s = append(s, ColumnSchema{Field: field, Encoding: c.Encoding()})
		}
	}
	return s
}

// Validate checks that every column has one value per row.
func (f *Frame) Validate() error {
	n := len(f.Slot)
	if len(f.Epoch) != n || len(f.EventTime) != n || len(f.PropagationMs) != n {
		return fmt.Errorf("ragged frame: slot=%d epoch=%d event_time=%d propagation=%d",
			n, len(f.Epoch), len(f.EventTime), len(f.PropagationMs))
	}
	for field, c := range f.Labels {
		if c == nil {
			return fmt.Errorf("label column %s is nil", field)
		}
		if c.Len() != n {
			return fmt.Errorf("ragged frame: %s has %d values, want %d", field, c.Len(), n)
		}
	}
	return nil
}

// Concat appends frames in order into a new frame. All frames must share one schema.
func Concat(frames ...*Frame) (*Frame, error) {
	out := NewFrame()
	if len(frames) == 0 {
		return out, nil
	}

	schema := frames[0].Schema()
	total := 0
	for i, f := range frames {
		if s := f.Schema(); !s.Equal(schema) {
			return nil, fmt.Errorf("%w: frame %d has %s, want %s", ErrSchemaMismatch, i, s, schema)
		}
		total += f.NumRows()
	}

	out.Slot = make([]int64, 0, total)
	out.Epoch = make([]int64, 0, total)
	out.EventTime = make([]time.Time, 0, total)
	out.PropagationMs = make([]float64, 0, total)
	for _, c := range schema {
		if c.Encoding == EncodingBinary {
			out.Labels[c.Field] = &LabelColumn{Binary: make([][]byte, 0, total)}
		} else {
			out.Labels[c.Field] = &LabelColumn{Text: make([]string, 0, total)}
		}
	}

	for _, f := range frames {
		out.Slot = append(out.Slot, f.Slot...)
		out.Epoch = append(out.Epoch, f.Epoch...)
		out.EventTime = append(out.EventTime, f.EventTime...)
		out.PropagationMs = append(out.PropagationMs, f.PropagationMs...)
		for _, c := range schema {
			src, dst := f.Labels[c.Field], out.Labels[c.Field]
			if c.Encoding == EncodingBinary {
				dst.Binary = append(dst.Binary, src.Binary...)
			} else {
				dst.Text = append(dst.Text, src.Text...)
			}
		}
	}
	return out, nil
}
