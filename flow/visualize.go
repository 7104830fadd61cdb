// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package flow

import (
	"fmt"
	"sort"

	"github.com/awalterschulze/gographviz"
)

// ExportDOT renders the flow's reachable node/successor graph as a Graphviz
// DOT document, starting from the flow's start node. Useful for seeing the
// whole successor topology at a glance when chasing an IllegalTransition.
func ExportDOT(f *Flow) (string, error) {
	graph := gographviz.NewGraph()
	if err := graph.SetName("pocketmesh"); err != nil {
		return "", err
	}
	if err := graph.SetDir(true); err != nil {
		return "", err
	}

	visited := make(map[Node]bool)
	if err := addNodeAndSuccessors(graph, f.start, visited); err != nil {
		return "", fmt.Errorf("flow: export graph: %w", err)
	}
	return graph.String(), nil
}

func addNodeAndSuccessors(graph *gographviz.Graph, node Node, visited map[Node]bool) error {
	if node == nil || visited[node] {
		return nil
	}
	visited[node] = true

	name := quoteID(node.Name())
	if !graph.IsNode(name) {
		if err := graph.AddNode("pocketmesh", name, nil); err != nil {
			return err
		}
	}

	base := node.internals()
	actions := make([]string, 0, len(base.Successors()))
	for a := range base.Successors() {
		actions = append(actions, string(a))
	}
	sort.Strings(actions)

	for _, a := range actions {
		succ := base.Successors()[Action(a)]
		succName := quoteID(succ.Name())
		if !graph.IsNode(succName) {
			if err := graph.AddNode("pocketmesh", succName, nil); err != nil {
				return err
			}
		}
		attrs := map[string]string{"label": quoteID(a)}
		if err := graph.AddEdge(name, succName, true, attrs); err != nil {
			return err
		}
		if err := addNodeAndSuccessors(graph, succ, visited); err != nil {
			return err
		}
	}
	return nil
}

func quoteID(s string) string {
	return fmt.Sprintf("%q", s)
}
