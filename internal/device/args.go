package device

import "fmt"

// Args are the values bound to a kernel at launch time, by index.
type Args []any

// HostData is implemented by buffers whose storage is visible to the host.
type HostData interface {
	Float32s() []float32
}

// Decoder reads typed kernel arguments and keeps the first mismatch.
type Decoder struct {
	args Args
	err  error
}

// Decode starts reading args.
func Decode(args Args) *Decoder { return &Decoder{args: args} }

func (d *Decoder) get(i int) any {
	if d.err != nil {
		return nil
	}
	if i < 0 || i >= len(d.args) {
		d.err = fmt.Errorf("argument %d out of range (have %d)", i, len(d.args))
		return nil
	}
	if d.args[i] == nil {
		d.err = fmt.Errorf("argument %d not set", i)
		return nil
	}
	return d.args[i]
}

// Float32s returns the host view of a buffer argument.
func (d *Decoder) Float32s(i int) []float32 {
	v := d.get(i)
	if v == nil {
		return nil
	}
	h, ok := v.(HostData)
	if !ok {
		d.err = fmt.Errorf("argument %d: want host buffer, got %T", i, v)
		return nil
	}
	return h.Float32s()
}

// Int returns an int32 argument as int.
func (d *Decoder) Int(i int) int {
	v := d.get(i)
	if v == nil {
		return 0
	}
	n, ok := v.(int32)
	if !ok {
		d.err = fmt.Errorf("argument %d: want int32, got %T", i, v)
		return 0
	}
	return int(n)
}

// Float returns a float32 argument.
func (d *Decoder) Float(i int) float32 {
	v := d.get(i)
	if v == nil {
		return 0
	}
	f, ok := v.(float32)
	if !ok {
		d.err = fmt.Errorf("argument %d: want float32, got %T", i, v)
		return 0
	}
	return f
}

// Local returns the byte size of a local memory argument.
func (d *Decoder) Local(i int) int {
	v := d.get(i)
	if v == nil {
		return 0
	}
	l, ok := v.(Local)
	if !ok {
		d.err = fmt.Errorf("argument %d: want local memory, got %T", i, v)
		return 0
	}
	return int(l)
}

// Err reports the first decoding failure.
func (d *Decoder) Err() error { return d.err }
