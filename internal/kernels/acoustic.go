package kernels

import (
	"math"

	"acoustic1d/internal/device"
)

const acoustic1DSource = `float2 load_cell(__global const float* q, __global const float* q_old, int j, int mx, int mbc)
{
    __global const float* src = (j < mbc || j >= mbc + mx) ? q : q_old;
    return (float2)(src[2 * j], src[2 * j + 1]);
}

__kernel void acoustic_1d(
    __global float* q,
    __global const float* q_old,
    __global float* s,
    const int mx,
    const int mbc,
    const float dt,
    const float dx,
    const float rho,
    const float K)
{
    int i = get_global_id(0);
    int mtot = mx + 2 * mbc;
    if (i >= mtot) {
        return;
    }
    if (i < mbc || i >= mbc + mx) {
        s[i] = 0.0f;
        return;
    }
    float c = sqrt(K / rho);
    float Z = rho * c;
    float2 ql = load_cell(q, q_old, i - 1, mx, mbc);
    float2 qc = load_cell(q, q_old, i, mx, mbc);
    float2 qr = load_cell(q, q_old, i + 1, mx, mbc);

    float dpl = qc.x - ql.x;
    float dul = qc.y - ql.y;
    float a1l = (-dpl + Z * dul) / (2.0f * Z);
    float a2l = (dpl + Z * dul) / (2.0f * Z);

    float dpr = qr.x - qc.x;
    float dur = qr.y - qc.y;
    float a1r = (-dpr + Z * dur) / (2.0f * Z);

    float2 apdq = (float2)(c * a2l * Z, c * a2l);
    float2 amdq = (float2)(c * a1r * Z, -c * a1r);
    float nu = dt / dx;
    q[2 * i] = qc.x - nu * (apdq.x + amdq.x);
    q[2 * i + 1] = qc.y - nu * (apdq.y + amdq.y);

    float a2r = (dpr + Z * dur) / (2.0f * Z);
    int moving = a1l != 0.0f || a2l != 0.0f || a1r != 0.0f || a2r != 0.0f;
    s[i] = moving ? c : 0.0f;
}`

// Acoustic1D advances the interior of q by one step of first-order Godunov
// with the linear acoustics Riemann solver. Interior neighbours are read from
// q_old and ghost neighbours from q, which this program never writes, so
// cells can be updated in any order. s[i] receives the sound speed for every
// cell touched by a wave of nonzero strength and 0 elsewhere (ghosts included).
//
// Args: q, q_old, s, mx, mbc, dt, dx, rho, K. Requires meqn == 2.
var Acoustic1D = device.Program{
	Name:   "acoustic_1d",
	Source: acoustic1DSource,
	Args:   9,
	Host:   acoustic1DHost,
}

// DtArg is the argument index of the step size in Acoustic1D.
const DtArg = 5

// Waves splits the jump between left and right states into the strengths of
// the left-going (a1) and right-going (a2) acoustic waves.
func Waves(pl, ul, pr, ur, z float32) (a1, a2 float32) {
	dp := pr - pl
	du := ur - ul
	a1 = (-dp + z*du) / (2 * z)
	a2 = (dp + z*du) / (2 * z)
	return a1, a2
}

func acoustic1DHost(args device.Args, group, groupSize, _ int) error {
	d := device.Decode(args)
	q := d.Float32s(0)
	qOld := d.Float32s(1)
	s := d.Float32s(2)
	mx := d.Int(3)
	mbc := d.Int(4)
	dt := d.Float(5)
	dx := d.Float(6)
	rho := d.Float(7)
	bulk := d.Float(8)
	if err := d.Err(); err != nil {
		return err
	}
	mtot := mx + 2*mbc
	for _, chk := range []struct {
		name string
		buf  []float32
		want int
	}{{"acoustic_1d q", q, 2 * mtot}, {"acoustic_1d q_old", qOld, 2 * mtot}, {"acoustic_1d s", s, mtot}} {
		if err := checkLen(chk.name, chk.buf, chk.want); err != nil {
			return err
		}
	}

	c := float32(math.Sqrt(float64(bulk / rho)))
	z := rho * c
	nu := dt / dx
	load := func(j int) (float32, float32) {
		src := qOld
		if j < mbc || j >= mbc+mx {
			src = q
		}
		return src[2*j], src[2*j+1]
	}
	workItems(group, groupSize, mtot, func(i, _ int) {
		if i < mbc || i >= mbc+mx {
			s[i] = 0
			return
		}
		pl, ul := load(i - 1)
		pc, uc := load(i)
		pr, ur := load(i + 1)
		a1l, a2l := Waves(pl, ul, pc, uc, z)
		a1r, a2r := Waves(pc, uc, pr, ur, z)

		apdqP, apdqU := c*a2l*z, c*a2l
		amdqP, amdqU := c*a1r*z, -c*a1r
		q[2*i] = pc - nu*(apdqP+amdqP)
		q[2*i+1] = uc - nu*(apdqU+amdqU)

		if a1l != 0 || a2l != 0 || a1r != 0 || a2r != 0 {
			s[i] = c
		} else {
			s[i] = 0
		}
	})
	return nil
}
