package dataset

import (
	"fmt"
	"time"
)

// Label is a single label value, either text or raw bytes.
type Label struct {
	Text   string
	Binary []byte
	IsBin  bool
}

func Text(s string) Label  { return Label{Text: s} }
func Bytes(b []byte) Label { return Label{Binary: b, IsBin: true} }

// Row is one raw observation in row-oriented form.
type Row struct {
	Slot          int64
	Epoch         int64
	EventTime     time.Time
	PropagationMs float64
	Labels        map[Field]Label
}

// Rows is the row-oriented dataset representation.
type Rows []Row

func (r Rows) NumRows() int {
	return len(r)
}

// Frame converts rows to the canonical columnar form. The label schema is taken from the
// first row; every row must carry the same fields with the same encodings.
func (r Rows) Frame() (*Frame, error) {
	f := NewFrame()
	n := len(r)
	f.Slot = make([]int64, n)
	f.Epoch = make([]int64, n)
	f.EventTime = make([]time.Time, n)
	f.PropagationMs = make([]float64, n)
	if n == 0 {
		return f, nil
	}

	for field, l := range r[0].Labels {
		if l.IsBin {
			f.Labels[field] = &LabelColumn{Binary: make([][]byte, n)}
		} else {
			f.Labels[field] = &LabelColumn{Text: make([]string, n)}
		}
	}

	for i, row := range r {
		f.Slot[i] = row.Slot
		f.Epoch[i] = row.Epoch
		f.EventTime[i] = row.EventTime
		f.PropagationMs[i] = row.PropagationMs
		if len(row.Labels) != len(f.Labels) {
			return nil, fmt.Errorf("%w: row %d has %d labels, want %d", ErrSchemaMismatch, i, len(row.Labels), len(f.Labels))
		}
		for field, l := range row.Labels {
			c, ok := f.Labels[field]
			if !ok {
				return nil, fmt.Errorf("%w: row %d has unexpected field %s", ErrSchemaMismatch, i, field)
			}
			if l.IsBin != (c.Binary != nil) {
				return nil, fmt.Errorf("%w: row %d field %s changes encoding", ErrSchemaMismatch, i, field)
			}
			if l.IsBin {
				c.Binary[i] = l.Binary
			} else {
				c.Text[i] = l.Text
			}
		}
	}
	return f, nil
}

// Canonical converts any supported dataset to a Frame.
func Canonical(ds Dataset) (*Frame, error) {
	switch v := ds.(type) {
	case *Frame:
		if v == nil {
			return nil, fmt.Errorf("%w: nil frame", ErrUnsupportedDataset)
		}
		if v.Labels == nil {
			cp := *v
			cp.Labels = make(map[Field]*LabelColumn)
			v = &cp
		}
		if err := v.Validate(); err != nil {
			return nil, err
		}
		return v, nil
	case Rows:
		return v.Frame()
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedDataset, ds)
	}
}
