package kernels_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"acoustic1d/internal/device"
	"acoustic1d/internal/grid"
	"acoustic1d/internal/kernels"
)

type KernelSuite struct {
	suite.Suite
	ctx   device.Context
	g     grid.Grid
	local int
	q     device.Buffer
	qOld  device.Buffer
	s     device.Buffer
}

func (s *KernelSuite) SetupTest() {
	s.ctx = device.NewCPU(2)
	s.g = grid.Grid{Meqn: 2, Mx: 10, Mbc: 2, XLower: 0, XUpper: 1}
	s.local = s.g.Mtot() / 2
	var err error
	s.q, err = s.ctx.Allocate("q", s.g.Size())
	s.Require().NoError(err)
	s.qOld, err = s.ctx.Allocate("q_old", s.g.Size())
	s.Require().NoError(err)
	s.s, err = s.ctx.Allocate("s", s.g.Mtot())
	s.Require().NoError(err)
}

func (s *KernelSuite) TearDownTest() { s.ctx.Release() }

func (s *KernelSuite) global() int { return device.RoundUp(s.g.Mtot(), s.local) }

func (s *KernelSuite) read(b device.Buffer) []float32 {
	out := make([]float32, b.Len())
	s.Require().NoError(s.ctx.Read(b, out))
	return out
}

func (s *KernelSuite) qinit(width float32) {
	k, err := s.ctx.Compile(kernels.QInit)
	s.Require().NoError(err)
	s.Require().NoError(k.SetArgs(s.q, int32(s.g.Meqn), int32(s.g.Mx), int32(s.g.Mbc),
		float32(s.g.XLower), float32(s.g.Dx()), int32(s.g.CenterCell()), width))
	s.Require().NoError(s.ctx.Enqueue(k, s.global(), s.local))
}

func (s *KernelSuite) bc(policy kernels.Boundary) {
	k, err := s.ctx.Compile(kernels.BC1)
	s.Require().NoError(err)
	s.Require().NoError(k.SetArgs(s.q, int32(s.g.Meqn), int32(s.g.Mx), int32(s.g.Mbc), int32(policy)))
	s.Require().NoError(s.ctx.Enqueue(k, s.global(), s.local))
}

func (s *KernelSuite) advance(dt float32) {
	s.Require().NoError(s.ctx.Copy(s.q, s.qOld))
	k, err := s.ctx.Compile(kernels.Acoustic1D)
	s.Require().NoError(err)
	s.Require().NoError(k.SetArgs(s.q, s.qOld, s.s, int32(s.g.Mx), int32(s.g.Mbc),
		dt, float32(s.g.Dx()), float32(1), float32(4)))
	s.Require().NoError(s.ctx.Enqueue(k, s.global(), s.local))
}

func (s *KernelSuite) TestQInitSingleCellPulse() {
	s.qinit(0)
	q := s.read(s.q)
	center := s.g.Mbc + s.g.CenterCell()
	for i := 0; i < s.g.Mtot(); i++ {
		want := float32(0)
		if i == center {
			want = 1
		}
		s.Equal(want, q[s.g.Index(i, 0)], "pressure at cell %d", i)
		s.Equal(float32(0), q[s.g.Index(i, 1)], "velocity at cell %d", i)
	}
}

func (s *KernelSuite) TestQInitGaussianPeaksAtCenter() {
	s.qinit(0.1)
	q := s.read(s.q)
	center := s.g.Mbc + s.g.CenterCell()
	s.InDelta(1.0, q[s.g.Index(center, 0)], 1e-6)
	s.Less(q[s.g.Index(center+2, 0)], q[s.g.Index(center+1, 0)])
}

func (s *KernelSuite) TestBoundaryFillIsIdempotent() {
	for _, policy := range []kernels.Boundary{kernels.Outflow, kernels.Wall, kernels.Periodic} {
		policy := policy
		s.Run(policy.String(), func() {
			s.qinit(0.3)
			s.advance(0.02)
			s.bc(policy)
			once := s.read(s.q)
			s.bc(policy)
			twice := s.read(s.q)
			s.Equal(once, twice)
		})
	}
}

func (s *KernelSuite) TestBoundaryFillLeavesInteriorAlone() {
	s.qinit(0.2)
	before := s.read(s.q)
	s.bc(kernels.Wall)
	after := s.read(s.q)
	for i := s.g.Mbc; i < s.g.Mbc+s.g.Mx; i++ {
		s.Equal(before[s.g.Index(i, 0)], after[s.g.Index(i, 0)])
		s.Equal(before[s.g.Index(i, 1)], after[s.g.Index(i, 1)])
	}
}

func (s *KernelSuite) TestWallNegatesVelocity() {
	s.qinit(0.2)
	s.advance(0.02)
	s.bc(kernels.Wall)
	q := s.read(s.q)
	mbc := s.g.Mbc
	s.Equal(q[s.g.Index(mbc, 0)], q[s.g.Index(mbc-1, 0)])
	s.Equal(-q[s.g.Index(mbc, 1)], q[s.g.Index(mbc-1, 1)])
}

func (s *KernelSuite) TestAdvanceQuiescentStateHasNoSpeed() {
	s.bc(kernels.Outflow)
	s.advance(0.05)
	for _, v := range s.read(s.s) {
		s.Equal(float32(0), v)
	}
	for _, v := range s.read(s.q) {
		s.Equal(float32(0), v)
	}
}

func (s *KernelSuite) TestAdvanceReportsSoundSpeedNearPulse() {
	s.qinit(0)
	s.bc(kernels.Outflow)
	s.advance(0.05)
	speeds := s.read(s.s)
	center := s.g.Mbc + s.g.CenterCell()
	s.Equal(float32(2), speeds[center])
	s.Equal(float32(2), speeds[center-1])
	s.Equal(float32(2), speeds[center+1])
	s.Equal(float32(0), speeds[0])
	s.Equal(float32(0), speeds[center+3])
}

func (s *KernelSuite) TestAdvanceAtUnitCourantShiftsWaves() {
	s.qinit(0)
	s.bc(kernels.Outflow)
	// c = 2, dx = 0.1: dt = 0.05 moves each wave exactly one cell.
	s.advance(0.05)
	q := s.read(s.q)
	center := s.g.Mbc + s.g.CenterCell()
	s.InDelta(0.5, q[s.g.Index(center-1, 0)], 1e-6)
	s.InDelta(0.5, q[s.g.Index(center+1, 0)], 1e-6)
	s.InDelta(0.0, q[s.g.Index(center, 0)], 1e-6)
	s.InDelta(0.25, q[s.g.Index(center+1, 1)], 1e-6)
	s.InDelta(-0.25, q[s.g.Index(center-1, 1)], 1e-6)
}

func TestKernelSuite(t *testing.T) {
	suite.Run(t, new(KernelSuite))
}

func TestMaxSpeedGroups(t *testing.T) {
	ctx := device.NewCPU(2)
	defer ctx.Release()
	src, err := ctx.Allocate("src", 7)
	require.NoError(t, err)
	dst, err := ctx.Allocate("dst", 3)
	require.NoError(t, err)

	fill, err := ctx.Compile(device.Program{
		Name: "seed",
		Args: 1,
		Host: func(args device.Args, group, groupSize, _ int) error {
			d := device.Decode(args)
			buf := d.Float32s(0)
			if err := d.Err(); err != nil {
				return err
			}
			vals := []float32{1, 9, 2, 3, 8, 4, 5}
			copy(buf, vals)
			return nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, fill.SetArgs(src))
	require.NoError(t, ctx.Enqueue(fill, 1, 1))

	k, err := ctx.Compile(kernels.MaxSpeed)
	require.NoError(t, err)
	require.NoError(t, k.SetArgs(src, dst, kernels.LocalBytes(3), int32(7)))
	require.NoError(t, ctx.Enqueue(k, 9, 3))

	out := make([]float32, 3)
	require.NoError(t, ctx.Read(dst, out))
	assert.Equal(t, []float32{9, 8, 5}, out)

	require.NoError(t, k.SetArg(2, kernels.LocalBytes(1)))
	require.Error(t, ctx.Enqueue(k, 9, 3), "too little local memory")
}

func TestGhostSource(t *testing.T) {
	src, sign := kernels.GhostSource(kernels.Outflow, 0, 10, 2)
	assert.Equal(t, 2, src)
	assert.Equal(t, float32(1), sign)

	src, sign = kernels.GhostSource(kernels.Wall, 1, 10, 2)
	assert.Equal(t, 2, src)
	assert.Equal(t, float32(-1), sign)

	src, _ = kernels.GhostSource(kernels.Periodic, 0, 10, 2)
	assert.Equal(t, 10, src)
	src, _ = kernels.GhostSource(kernels.Periodic, 13, 10, 2)
	assert.Equal(t, 3, src)
	src, _ = kernels.GhostSource(kernels.Outflow, 13, 10, 2)
	assert.Equal(t, 11, src)
}

func TestParseBoundary(t *testing.T) {
	b, err := kernels.ParseBoundary("Reflecting")
	require.NoError(t, err)
	assert.Equal(t, kernels.Wall, b)
	_, err = kernels.ParseBoundary("sponge")
	require.Error(t, err)
	assert.Equal(t, "periodic", kernels.Periodic.String())
}
