package kernels

import "acoustic1d/internal/device"

const bc1Source = `__kernel void bc1(
    __global float* q,
    const int meqn,
    const int mx,
    const int mbc,
    const int policy)
{
    int i = get_global_id(0);
    int mtot = mx + 2 * mbc;
    if (i >= mtot || (i >= mbc && i < mbc + mx)) {
        return;
    }
    int src;
    float sign = 1.0f;
    if (i < mbc) {
        if (policy == 2) {
            src = i + mx;
        } else if (policy == 1) {
            src = 2 * mbc - 1 - i;
            sign = -1.0f;
        } else {
            src = mbc;
        }
    } else {
        if (policy == 2) {
            src = i - mx;
        } else if (policy == 1) {
            src = 2 * (mbc + mx) - 1 - i;
            sign = -1.0f;
        } else {
            src = mbc + mx - 1;
        }
    }
    src = clamp(src, mbc, mbc + mx - 1);
    q[meqn * i] = q[meqn * src];
    for (int m = 1; m < meqn; m++) {
        q[meqn * i + m] = sign * q[meqn * src + m];
    }
}`

// BC1 overwrites the ghost cells of q from interior values according to the
// policy argument (see Boundary). Interior cells are never written, so
// applying it twice in a row gives the same result as applying it once.
//
// Args: q, meqn, mx, mbc, policy.
var BC1 = device.Program{
	Name:   "bc1",
	Source: bc1Source,
	Args:   5,
	Host:   bc1Host,
}

// GhostSource returns the interior cell ghost cell i is filled from and the
// sign applied to the non-pressure components.
func GhostSource(policy Boundary, i, mx, mbc int) (int, float32) {
	src := 0
	sign := float32(1)
	if i < mbc {
		switch policy {
		case Periodic:
			src = i + mx
		case Wall:
			src = 2*mbc - 1 - i
			sign = -1
		default:
			src = mbc
		}
	} else {
		switch policy {
		case Periodic:
			src = i - mx
		case Wall:
			src = 2*(mbc+mx) - 1 - i
			sign = -1
		default:
			src = mbc + mx - 1
		}
	}
	return min(max(src, mbc), mbc+mx-1), sign
}

func bc1Host(args device.Args, group, groupSize, _ int) error {
	d := device.Decode(args)
	q := d.Float32s(0)
	meqn := d.Int(1)
	mx := d.Int(2)
	mbc := d.Int(3)
	policy := Boundary(d.Int(4))
	if err := d.Err(); err != nil {
		return err
	}
	mtot := mx + 2*mbc
	if err := checkLen("bc1 q", q, meqn*mtot); err != nil {
		return err
	}
	workItems(group, groupSize, mtot, func(i, _ int) {
		if i >= mbc && i < mbc+mx {
			return
		}
		src, sign := GhostSource(policy, i, mx, mbc)
		q[meqn*i] = q[meqn*src]
		for m := 1; m < meqn; m++ {
			q[meqn*i+m] = sign * q[meqn*src+m]
		}
	})
	return nil
}
