// Package graph runs the two independent topological sorts the builder
// needs — creation order and registration order — over a
// model.DependencyGraph, with cycle detection adapted from the teacher's
// builtin/aspect/chain_validator_aspect.go DFS-based checkCycles (there
// walking a rule chain's node graph for message-routing cycles; here
// walking a variable dependency graph for construction-order cycles).
package graph

import (
	"fmt"
	"strings"

	"github.com/bittoy/platformdesc/diag"
	"github.com/bittoy/platformdesc/internal/model"
)

type color int

const (
	white color = iota
	gray
	black
)

// Sort returns g's nodes in dependency-first topological order: dependsOn
// always precedes the node that depends on it. code is the diag.Code to
// report (CreationOrderCycle or RegistrationOrderCycle) if a cycle is
// found, rendered as the edge-by-edge cycle path.
func Sort(g *model.DependencyGraph, code diag.Code) []string {
	colors := make(map[string]color, len(g.Nodes()))
	var order []string
	var stack []string

	var visit func(name string)
	visit = func(name string) {
		colors[name] = gray
		stack = append(stack, name)
		for _, e := range g.Neighbors(name) {
			switch colors[e.To] {
			case white:
				visit(e.To)
			case gray:
				reportCycle(g, code, stack, e)
			case black:
				// already fully ordered, nothing to do
			}
		}
		stack = stack[:len(stack)-1]
		colors[name] = black
		order = append(order, name)
	}

	for _, n := range g.Nodes() {
		if colors[n] == white {
			visit(n)
		}
	}
	return order
}

// reportCycle renders the cycle starting at e.To (the gray node the DFS
// walked back into) through the rest of the current stack and back to e.To,
// using each edge's own syntax text so the diagnostic reads like the
// source that caused it rather than a synthesized description.
func reportCycle(g *model.DependencyGraph, code diag.Code, stack []string, closing model.Edge) {
	start := 0
	for i, n := range stack {
		if n == closing.To {
			start = i
			break
		}
	}
	cycle := stack[start:]
	steps := make([]string, 0, len(cycle))
	for i, from := range cycle {
		e := closing
		if i+1 < len(cycle) {
			for _, cand := range g.Neighbors(from) {
				if cand.To == cycle[i+1] {
					e = cand
					break
				}
			}
		}
		steps = append(steps, fmt.Sprintf("%s -> %s at %s:%d:%d (%s)", from, e.To, e.File, e.Pos.Line, e.Pos.Column, e.Syntax))
	}
	diag.ReportAt(code, closing.Pos, closing.File, true,
		"dependency cycle:\n%s", strings.Join(steps, "\n"))
}
