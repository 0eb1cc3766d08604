package solver_test

import (
	"context"
	"fmt"

	"acoustic1d/internal/device"
	"acoustic1d/internal/output"
	"acoustic1d/internal/solver"
)

func ExamplePlan() {
	passes, _ := solver.Plan(104, 8)
	for _, p := range passes {
		fmt.Printf("length=%d group=%d groups=%d\n", p.Length, p.GroupSize, p.Groups)
	}
	// Output:
	// length=104 group=8 groups=13
	// length=13 group=8 groups=2
	// length=2 group=2 groups=1
}

func ExampleSolver_Run() {
	var frames output.Memory
	sol, err := solver.New(device.NewCPU(0), solver.Reference(), &frames, nil)
	if err != nil {
		fmt.Println(err)
		return
	}
	res, err := sol.Run(context.Background())
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(res.Outcome, len(frames.Frames()), res.T)
	// Output: completed 17 1
}
