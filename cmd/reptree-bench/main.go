// Command reptree-bench drives a handful of simulated replicas through
// random Move/SetProp traffic, cross-merges them, and reports whether
// they converged and how fast the engine got there.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/cshekharsharma/reptree"
	"github.com/cshekharsharma/reptree/internal/equality"
)

const (
	reset = "\033[0m"
	bold  = "\033[1m"
	red   = "\033[31m"
	green = "\033[32m"
)

func main() {
	peers := flag.Int("peers", 4, "number of simulated replicas")
	ops := flag.Int("ops", 200, "random ops applied per replica before merging")
	vertices := flag.Int("vertices", 50, "vertices seeded into the shared tree before op generation")
	seed := flag.Int64("seed", time.Now().UnixNano(), "PRNG seed (fixed for reproducible runs)")
	flag.Parse()

	if *peers < 2 {
		fmt.Fprintln(os.Stderr, "reptree-bench: -peers must be at least 2 to exercise merge")
		os.Exit(2)
	}

	rng := rand.New(rand.NewSource(*seed))
	start := time.Now()

	replicas, totalApplied, err := run(rng, *peers, *ops, *vertices)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reptree-bench: %v\n", err)
		os.Exit(1)
	}

	elapsed := time.Since(start)
	converged, mismatch := checkConvergence(replicas)

	fmt.Printf("%s%sREPTREE BENCH%s\n", bold, green, reset)
	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("replicas:        %d\n", *peers)
	fmt.Printf("seed:            %d\n", *seed)
	fmt.Printf("ops applied:     %d\n", totalApplied)
	fmt.Printf("elapsed:         %s\n", elapsed)
	fmt.Printf("throughput:      %.0f ops/sec\n", float64(totalApplied)/elapsed.Seconds())
	fmt.Println(strings.Repeat("─", 60))

	if converged {
		fmt.Printf("%s%sCONVERGED%s — every replica pair is structurally equal\n", bold, green, reset)
		return
	}
	fmt.Printf("%s%sDIVERGED%s\n%s\n", bold, red, reset, mismatch)
	os.Exit(1)
}

// run seeds one engine with a shared tree, replicates it to peerCount
// independent engines, has each apply opsPerPeer random local mutations,
// then cross-merges every replica's local ops into every other replica.
// It returns the converged (hopefully) replica set and the total count
// of ops actually applied across all of them.
func run(rng *rand.Rand, peerCount, opsPerPeer, vertexCount int) ([]*reptree.Engine, int, error) {
	origin, err := reptree.New("seed")
	if err != nil {
		return nil, 0, err
	}
	root, err := origin.CreateRoot()
	if err != nil {
		return nil, 0, err
	}
	ids := []reptree.VertexID{root}
	for i := 0; i < vertexCount; i++ {
		v := reptree.NewVertexID()
		parent := ids[rng.Intn(len(ids))]
		if _, err := origin.Move(v, parent); err != nil {
			return nil, 0, err
		}
		ids = append(ids, v)
	}

	replicas := make([]*reptree.Engine, peerCount)
	for i := range replicas {
		r, err := origin.Replicate(fmt.Sprintf("peer-%d", i))
		if err != nil {
			return nil, 0, err
		}
		r.PopLocalOps() // Replicate's own bootstrap ops never need replaying
		replicas[i] = r
	}

	totalApplied := 0
	batches := make([][]reptree.Op, peerCount)
	for i, r := range replicas {
		for j := 0; j < opsPerPeer; j++ {
			if err := applyRandomOp(rng, r, ids); err != nil {
				return nil, 0, err
			}
			totalApplied++
		}
		batches[i] = r.PopLocalOps()
	}

	for i, r := range replicas {
		for j, batch := range batches {
			if i == j {
				continue
			}
			if err := r.Merge(batch); err != nil {
				return nil, 0, err
			}
		}
	}

	return replicas, totalApplied, nil
}

func applyRandomOp(rng *rand.Rand, e *reptree.Engine, ids []reptree.VertexID) error {
	target := ids[rng.Intn(len(ids))]
	switch rng.Intn(2) {
	case 0:
		parent := ids[rng.Intn(len(ids))]
		_, err := e.Move(target, parent)
		return err
	default:
		_, err := e.SetProp(target, "counter", reptree.IntValue(rng.Int63n(1000)), false)
		return err
	}
}

func checkConvergence(replicas []*reptree.Engine) (bool, string) {
	for i := 1; i < len(replicas); i++ {
		if equal, diff := equality.StructurallyEqual(replicas[0], replicas[i]); !equal {
			return false, fmt.Sprintf("peer-0 vs peer-%d:\n%s", i, diff)
		}
	}
	return true, ""
}
