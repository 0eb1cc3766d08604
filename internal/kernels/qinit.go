package kernels

import (
	"math"

	"acoustic1d/internal/device"
)

const qinitSource = `__kernel void qinit(
    __global float* q,
    const int meqn,
    const int mx,
    const int mbc,
    const float xlower,
    const float dx,
    const int center,
    const float width)
{
    int i = get_global_id(0);
    int mtot = mx + 2 * mbc;
    if (i >= mtot) {
        return;
    }
    float p = 0.0f;
    if (width > 0.0f) {
        float xc = xlower + ((float)center + 0.5f) * dx;
        float x = xlower + ((float)(i - mbc) + 0.5f) * dx;
        float r = (x - xc) / width;
        p = exp(-r * r);
    } else if (i - mbc == center) {
        p = 1.0f;
    }
    q[meqn * i] = p;
    for (int m = 1; m < meqn; m++) {
        q[meqn * i + m] = 0.0f;
    }
}`

// QInit fills every stored cell, ghosts included, with the initial
// condition: zero velocity and a pressure pulse centred on interior cell
// `center`. With width <= 0 the pulse is a single cell of unit amplitude,
// otherwise a Gaussian of that width.
//
// Args: q, meqn, mx, mbc, xlower, dx, center, width.
var QInit = device.Program{
	Name:   "qinit",
	Source: qinitSource,
	Args:   8,
	Host:   qinitHost,
}

func qinitHost(args device.Args, group, groupSize, _ int) error {
	d := device.Decode(args)
	q := d.Float32s(0)
	meqn := d.Int(1)
	mx := d.Int(2)
	mbc := d.Int(3)
	xlower := d.Float(4)
	dx := d.Float(5)
	center := d.Int(6)
	width := d.Float(7)
	if err := d.Err(); err != nil {
		return err
	}
	mtot := mx + 2*mbc
	if err := checkLen("qinit q", q, meqn*mtot); err != nil {
		return err
	}
	workItems(group, groupSize, mtot, func(i, _ int) {
		var p float32
		if width > 0 {
			xc := xlower + (float32(center)+0.5)*dx
			x := xlower + (float32(i-mbc)+0.5)*dx
			r := (x - xc) / width
			p = float32(math.Exp(float64(-r * r)))
		} else if i-mbc == center {
			p = 1
		}
		q[meqn*i] = p
		for m := 1; m < meqn; m++ {
			q[meqn*i+m] = 0
		}
	})
	return nil
}
