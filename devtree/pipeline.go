package devtree

import "log/slog"

// Status is a probe's outcome for one node (§4.14).
type Status int

const (
	Unrecognised Status = iota
	Success
	Waiting
	Failure
)

func (s Status) String() string {
	switch s {
	case Unrecognised:
		return "Unrecognised"
	case Success:
		return "Success"
	case Waiting:
		return "Waiting"
	case Failure:
		return "Failure"
	default:
		return "Unknown"
	}
}

// Probe examines a node and either claims it (Success/Failure/Waiting) or
// passes (Unrecognised), in which case the pipeline tries the next probe.
type Probe func(n *Node, results *Results) Status

// Results tracks the last-known status of every node the pipeline has
// seen, so a probe can ask whether its dependency (interrupt-parent, clock
// provider) has already resolved.
type Results struct {
	status map[*Node]Status
}

func newResults() *Results { return &Results{status: make(map[*Node]Status)} }

// StatusOf reports n's current status (Unrecognised if n has not been
// visited yet this run).
func (r *Results) StatusOf(n *Node) Status {
	if n == nil {
		return Unrecognised
	}
	return r.status[n]
}

// Pipeline runs a list of Probes over a device-tree, rerunning Waiting
// nodes until the set is stable (§4.14).
type Pipeline struct {
	probes []Probe
	log    *slog.Logger
}

func NewPipeline(log *slog.Logger, probes ...Probe) *Pipeline {
	return &Pipeline{probes: probes, log: log}
}

// Run walks root repeatedly, applying the first matching probe to every
// node not yet Success/Failure, until a full pass resolves no further
// Waiting node (§4.14: "reruns the node on a later pass until the set of
// outstanding Waiting nodes is stable").
func (p *Pipeline) Run(root *Node) *Results {
	results := newResults()

	for {
		var all []*Node
		root.Walk(func(n *Node) { all = append(all, n) })

		progressed := false
		outstanding := 0
		for _, n := range all {
			switch results.status[n] {
			case Success, Failure:
				continue
			}

			status := p.runProbes(n, results)
			prev := results.status[n]
			results.status[n] = status

			switch status {
			case Success:
				progressed = true
				p.log.Debug("devtree: node ready", "node", n.Name)
			case Failure:
				progressed = true
				p.log.Warn("devtree: node failed, abandoning subtree", "node", n.Name)
			case Waiting:
				outstanding++
				if prev != Waiting {
					progressed = true
				}
			case Unrecognised:
				// Leave for a future pass only if some sibling's success
				// might change the outcome; otherwise this is terminal.
			}
		}

		if !progressed || outstanding == 0 {
			return results
		}
	}
}

func (p *Pipeline) runProbes(n *Node, results *Results) Status {
	for _, probe := range p.probes {
		status := probe(n, results)
		if status != Unrecognised {
			return status
		}
	}
	return Unrecognised
}
