package coordinator

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sentinel-swarm/swarmkit/internal/swarm/conflict"
	"github.com/sentinel-swarm/swarmkit/internal/swarm/swarmtypes"
)

// TestProperty_AcyclicChainsAlwaysBuild checks that any linear chain of N
// tasks (no back edges) always builds a DAG successfully.
func TestProperty_AcyclicChainsAlwaysBuild(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a linear dependency chain never reports a cycle", prop.ForAll(
		func(n int) bool {
			tasks := make([]swarmtypes.Task, n)
			for i := 0; i < n; i++ {
				id := fmt.Sprintf("t%d", i)
				var deps []string
				if i > 0 {
					deps = []string{fmt.Sprintf("t%d", i-1)}
				}
				tasks[i] = swarmtypes.Task{ID: id, DependsOn: deps}
			}
			_, err := BuildDAG(tasks)
			return err == nil
		},
		gen.IntRange(1, 30),
	))

	properties.TestingRun(t)
}

// TestProperty_CycleAlwaysDetectedAndNamesEveryNode checks that wrapping a
// linear chain back on itself always produces a CycleError naming every
// task on the ring.
func TestProperty_CycleAlwaysDetectedAndNamesEveryNode(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a dependency ring is always detected, naming every task on it", prop.ForAll(
		func(n int) bool {
			tasks := make([]swarmtypes.Task, n)
			for i := 0; i < n; i++ {
				id := fmt.Sprintf("t%d", i)
				nextDep := fmt.Sprintf("t%d", (i+1)%n)
				tasks[i] = swarmtypes.Task{ID: id, DependsOn: []string{nextDep}}
			}

			_, err := BuildDAG(tasks)
			if err == nil {
				return false
			}
			var cycleErr *swarmtypes.CycleError
			if !asCycleError(err, &cycleErr) {
				return false
			}
			if len(cycleErr.Cycle) != n {
				return false
			}
			seen := make(map[string]bool, n)
			for _, id := range cycleErr.Cycle {
				seen[id] = true
			}
			return len(seen) == n
		},
		gen.IntRange(2, 15),
	))

	properties.TestingRun(t)
}

func asCycleError(err error, target **swarmtypes.CycleError) bool {
	ce, ok := err.(*swarmtypes.CycleError)
	if !ok {
		return false
	}
	*target = ce
	return true
}

// TestProperty_AntiDependencyAlwaysSuspendsLowerPriority checks the
// Coordinator's documented tie-break: of any two co-running
// anti-dependent tasks, the lower-priority one (on a tie, the one with the
// lexicographically greater ID) is always the one suspended.
func TestProperty_AntiDependencyAlwaysSuspendsLowerPriority(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("the lower-priority (or lexicographically greater) task is always suspended", prop.ForAll(
		func(priorityA, priorityB float64) bool {
			a := swarmtypes.Task{ID: "task_a", Priority: priorityA, AntiDependsOn: []string{"task_b"}}
			b := swarmtypes.Task{ID: "task_b", Priority: priorityB}

			expectedLoser := "task_b"
			if priorityA < priorityB {
				expectedLoser = "task_a"
			}
			// a tie makes "task_b" the loser: on equal priority the
			// lexicographically smaller ID ("task_a") stays running.

			eng := conflict.New(nil, nil, nil, nil, nil)
			eng.InspectAntiDependencies([]swarmtypes.Task{a, b})
			return eng.IsSuspended(expectedLoser) && !eng.IsSuspended(otherOf(expectedLoser))
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

func otherOf(id string) string {
	if id == "task_a" {
		return "task_b"
	}
	return "task_a"
}
