package output_test

import (
	"bytes"
	"errors"
	"image/png"
	"math"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acoustic1d/internal/grid"
	"acoustic1d/internal/output"
)

func testFrame(t *testing.T, index int, tm float64) output.Frame {
	t.Helper()
	g, err := grid.New(2, 4, 2, -1, 1)
	require.NoError(t, err)
	return output.Frame{
		Index: index,
		Time:  tm,
		Grid:  g,
		Q:     []float32{0, 0, 0.5, -0.25, 1, 0, 0.5, 0.25},
	}
}

func TestMemoryCopiesState(t *testing.T) {
	var mem output.Memory
	f := testFrame(t, 0, 0)
	require.NoError(t, mem.WriteFrame(f))
	f.Q[0] = 42

	frames := mem.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, float32(0), frames[0].Q[0])
}

func TestMultiJoinsErrors(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	var mem output.Memory
	m := output.Multi{
		output.SinkFunc(func(output.Frame) error { return errA }),
		&mem,
		nil,
		output.SinkFunc(func(output.Frame) error { return errB }),
	}
	err := m.WriteFrame(testFrame(t, 3, 0.5))
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Len(t, mem.Frames(), 1, "a failing sink does not stop the others")
}

func TestClawWriterFormat(t *testing.T) {
	dir := t.TempDir()
	w, err := output.NewClawWriter(filepath.Join(dir, "_output"))
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(testFrame(t, 7, 0.4375)))

	qdata, err := os.ReadFile(filepath.Join(w.Dir, "fort.q0007"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(qdata), "\n"), "\n")
	require.Len(t, lines, 6+4)
	assert.Equal(t, []string{"1", "grid_number"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"4", "mx"}, strings.Fields(lines[2]))
	assert.Equal(t, "xlow", strings.Fields(lines[3])[1])
	assert.Equal(t, "", lines[5])

	xlow, err := strconv.ParseFloat(strings.Fields(lines[3])[0], 64)
	require.NoError(t, err)
	assert.Equal(t, -1.0, xlow)
	dx, err := strconv.ParseFloat(strings.Fields(lines[4])[0], 64)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, dx, 1e-12)

	cell := strings.Fields(lines[6+2])
	require.Len(t, cell, 2)
	p, err := strconv.ParseFloat(cell[0], 64)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)

	tdata, err := os.ReadFile(filepath.Join(w.Dir, "fort.t0007"))
	require.NoError(t, err)
	tlines := strings.Split(strings.TrimRight(string(tdata), "\n"), "\n")
	require.Len(t, tlines, 5)
	tm, err := strconv.ParseFloat(strings.Fields(tlines[0])[0], 64)
	require.NoError(t, err)
	assert.InDelta(t, 0.4375, tm, 1e-8)
	assert.Equal(t, []string{"2", "meqn"}, strings.Fields(tlines[1]))
}

func TestClawWriterRejectsShortFrame(t *testing.T) {
	w, err := output.NewClawWriter(t.TempDir())
	require.NoError(t, err)
	f := testFrame(t, 1, 0.1)
	f.Q = f.Q[:3]
	assert.Error(t, w.WriteFrame(f))
}

func TestPlotWriterWritesPNG(t *testing.T) {
	w, err := output.NewPlotWriter(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(testFrame(t, 2, 0.125)))

	f, err := os.Open(filepath.Join(w.Dir, "frame0002.png"))
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, w.Width, img.Bounds().Dx())
}

func TestPlotWriterFlatState(t *testing.T) {
	w := &output.PlotWriter{Width: 320, Height: 200}
	f := testFrame(t, 0, 0)
	for i := range f.Q {
		f.Q[i] = 0
	}
	var buf bytes.Buffer
	require.NoError(t, w.Render(f, &buf))
	assert.NotZero(t, buf.Len())
}

func TestSummaryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.yaml")
	want := output.Summary{
		Outcome:    "completed",
		Device:     "cpu",
		Steps:      100,
		Frames:     17,
		FinalTime:  1,
		NextDt:     0.01,
		MaxCourant: 1,
	}
	require.NoError(t, output.WriteSummary(path, want))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "outcome: completed")
	assert.NotContains(t, string(raw), "error:")

	got, err := output.ReadSummary(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStreamBroadcastsFrames(t *testing.T) {
	logger, _ := test.NewNullLogger()
	stream := output.NewStream(logger)
	srv := httptest.NewServer(stream)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return stream.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, stream.WriteFrame(testFrame(t, 4, 0.25)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg output.FrameMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "frame", msg.Type)
	assert.Equal(t, 4, msg.Frame)
	assert.Equal(t, 0.25, msg.Time)
	require.Len(t, msg.Q, 2)
	assert.Equal(t, []float64{0, 0.5, 1, 0.5}, msg.Q[0])
	assert.Equal(t, [2]float64{-0.25, 0.25}, msg.Extrema[1])
	assert.Len(t, msg.X, 4)
}

func TestStreamReplaysLastFrame(t *testing.T) {
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	stream := output.NewStream(logger)
	srv := httptest.NewServer(stream)
	defer srv.Close()

	require.NoError(t, stream.WriteFrame(testFrame(t, 9, 0.6)), "no clients is not an error")

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg output.FrameMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, 9, msg.Frame)
}

func TestHalfRoundTrip(t *testing.T) {
	f := testFrame(t, 12, 0.75)
	f.Q = []float32{0, 1, -2, 0.5, 65504, 1e6, 6e-8, -0.1}
	got, err := output.DecodeHalf(output.EncodeHalf(f))
	require.NoError(t, err)

	assert.Equal(t, 12, got.Index)
	assert.Equal(t, 0.75, got.Time)
	assert.Equal(t, 2, got.Grid.Meqn)
	assert.Equal(t, 4, got.Grid.Mx)
	require.Len(t, got.Q, len(f.Q))
	assert.Equal(t, []float32{0, 1, -2, 0.5, 65504}, got.Q[:5], "exactly representable")
	assert.True(t, math.IsInf(float64(got.Q[5]), 1), "overflow saturates to +Inf")
	assert.InDelta(t, 6e-8, got.Q[6], 3e-8, "subnormal")
	assert.InDelta(t, -0.1, got.Q[7], 1e-4)
}

func TestHalfNaN(t *testing.T) {
	f := testFrame(t, 0, 0)
	f.Q = []float32{float32(math.NaN()), 0, 0, 0, 0, 0, 0, 0}
	got, err := output.DecodeHalf(output.EncodeHalf(f))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(float64(got.Q[0])))
}

func TestDecodeHalfRejectsTruncated(t *testing.T) {
	data := output.EncodeHalf(testFrame(t, 1, 0))
	_, err := output.DecodeHalf(data[:10])
	assert.Error(t, err)
	_, err = output.DecodeHalf(data[:len(data)-1])
	assert.Error(t, err)
}

func TestStreamHalf(t *testing.T) {
	logger, _ := test.NewNullLogger()
	stream := output.NewStream(logger)
	stream.Half = true
	srv := httptest.NewServer(stream)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return stream.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	want := testFrame(t, 5, 0.3125)
	require.NoError(t, stream.WriteFrame(want))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	got, err := output.DecodeHalf(data)
	require.NoError(t, err)
	assert.Equal(t, want.Q, got.Q)
	assert.Equal(t, want.Time, got.Time)
}

func TestStreamDropsClientThatStopsReading(t *testing.T) {
	logger, _ := test.NewNullLogger()
	stream := output.NewStream(logger)
	stream.WriteTimeout = 200 * time.Millisecond
	srv := httptest.NewServer(stream)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return stream.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	g, err := grid.New(2, 50000, 2, -1, 1)
	require.NoError(t, err)
	big := output.Frame{Grid: g, Q: make([]float32, g.InteriorSize())}
	for i := range big.Q {
		big.Q[i] = float32(i)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			big.Index = i
			assert.NoError(t, stream.WriteFrame(big))
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("WriteFrame waited on a client that does not read")
	}
	assert.Eventually(t, func() bool { return stream.Clients() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestStreamReplayPrecedesNewFrames(t *testing.T) {
	logger, _ := test.NewNullLogger()
	stream := output.NewStream(logger)
	srv := httptest.NewServer(stream)
	defer srv.Close()

	require.NoError(t, stream.WriteFrame(testFrame(t, 1, 0.1)))
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return stream.Clients() == 1 }, 2*time.Second, time.Millisecond)
	require.NoError(t, stream.WriteFrame(testFrame(t, 2, 0.2)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for _, want := range []int{1, 2} {
		var msg output.FrameMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, want, msg.Frame)
	}
}
