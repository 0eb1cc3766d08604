package output

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// ClawWriter writes frames as Clawpack ASCII pairs fort.qNNNN / fort.tNNNN
// so that the visclaw plotting tools can read them.
type ClawWriter struct {
	Dir string
}

// NewClawWriter creates dir if needed.
func NewClawWriter(dir string) (*ClawWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &ClawWriter{Dir: dir}, nil
}

func (c *ClawWriter) WriteFrame(f Frame) error {
	if want := f.Grid.InteriorSize(); len(f.Q) != want {
		return fmt.Errorf("frame %d: %d values, grid needs %d", f.Index, len(f.Q), want)
	}
	if err := c.writeFile(fmt.Sprintf("fort.q%04d", f.Index), func(w *bufio.Writer) {
		writeQ(w, f)
	}); err != nil {
		return err
	}
	return c.writeFile(fmt.Sprintf("fort.t%04d", f.Index), func(w *bufio.Writer) {
		writeT(w, f)
	})
}

func (c *ClawWriter) writeFile(name string, body func(*bufio.Writer)) error {
	path := filepath.Join(c.Dir, name)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	w := bufio.NewWriter(file)
	body(w)
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

func writeQ(w *bufio.Writer, f Frame) {
	g := f.Grid
	fmt.Fprintf(w, "%6d                 grid_number\n", 1)
	fmt.Fprintf(w, "%6d                 AMR_level\n", 1)
	fmt.Fprintf(w, "%6d                 mx\n", g.Mx)
	fmt.Fprintf(w, "%s    xlow\n", fortranE(g.XLower))
	fmt.Fprintf(w, "%s    dx\n", fortranE(g.Dx()))
	w.WriteString("\n")
	for i := 0; i < g.Mx; i++ {
		for m := 0; m < g.Meqn; m++ {
			v := float64(f.Q[g.Meqn*i+m])
			// Fortran readers choke on three-digit exponents.
			if math.Abs(v) < 1e-99 {
				v = 0
			}
			fmt.Fprintf(w, "%s ", fortranE(v))
		}
		w.WriteString("\n")
	}
}

func writeT(w *bufio.Writer, f Frame) {
	fmt.Fprintf(w, "%s    time\n", fortranE(f.Time))
	fmt.Fprintf(w, "%6d                 meqn\n", f.Grid.Meqn)
	fmt.Fprintf(w, "%6d                 ngrids\n", 1)
	fmt.Fprintf(w, "%6d                 naux\n", 0)
	fmt.Fprintf(w, "%6d                 ndim\n", 1)
}

func fortranE(v float64) string { return fmt.Sprintf("%18.8E", v) }
