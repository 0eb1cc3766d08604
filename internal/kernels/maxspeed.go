package kernels

import (
	"fmt"

	"acoustic1d/internal/device"
)

const maxSpeedSource = `__kernel void max_speed(
    __global const float* src,
    __global float* dst,
    __local float* tmp,
    const int length)
{
    int gid = get_global_id(0);
    int lid = get_local_id(0);
    int n = get_local_size(0);
    tmp[lid] = gid < length ? src[gid] : 0.0f;
    barrier(CLK_LOCAL_MEM_FENCE);
    while (n > 1) {
        int half = (n + 1) / 2;
        if (lid < n / 2) {
            tmp[lid] = fmax(tmp[lid], tmp[lid + half]);
        }
        barrier(CLK_LOCAL_MEM_FENCE);
        n = half;
    }
    if (lid == 0) {
        dst[get_group_id(0)] = tmp[0];
    }
}`

// MaxSpeed folds each work-group's slice of src into its maximum and writes
// it to dst[group]. Lanes at or past the active length contribute 0, which
// is neutral because speeds are never negative.
//
// Args: src, dst, local scratch (groupSize floats), length.
var MaxSpeed = device.Program{
	Name:   "max_speed",
	Source: maxSpeedSource,
	Args:   4,
	Host:   maxSpeedHost,
}

// LocalBytes is the local memory MaxSpeed needs for one work-group.
func LocalBytes(groupSize int) device.Local {
	return device.Local(groupSize * 4)
}

func maxSpeedHost(args device.Args, group, groupSize, _ int) error {
	d := device.Decode(args)
	src := d.Float32s(0)
	dst := d.Float32s(1)
	local := d.Local(2)
	length := d.Int(3)
	if err := d.Err(); err != nil {
		return err
	}
	if local < int(LocalBytes(groupSize)) {
		return fmt.Errorf("max_speed: %d bytes of local memory for a group of %d", local, groupSize)
	}
	if group >= len(dst) {
		return fmt.Errorf("max_speed: group %d has no output slot (dst holds %d)", group, len(dst))
	}
	limit := min(length, len(src))
	var best float32
	workItems(group, groupSize, limit, func(gid, _ int) {
		if v := src[gid]; v > best {
			best = v
		}
	})
	dst[group] = best
	return nil
}
