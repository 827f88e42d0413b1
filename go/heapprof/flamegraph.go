package heapprof

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// The flamegraph renderer emits the classic standalone SVG layout: one rect
// per frame, width proportional to the bytes attributed to the frame and its
// callees, stacked root-up. Colours come from the memory palette (greens and
// blues), picked deterministically by hashing the frame name so reruns of
// the same workload paint the same picture.

type flamegraphOptions struct {
	title      string
	countLabel string
	width      int
}

// FlamegraphOption adjusts the rendered SVG.
type FlamegraphOption func(*flamegraphOptions)

// WithTitle overrides the heading at the top of the graph.
func WithTitle(title string) FlamegraphOption {
	return func(o *flamegraphOptions) {
		o.title = title
	}
}

// WithCountLabel overrides the unit shown in frame tooltips.
func WithCountLabel(label string) FlamegraphOption {
	return func(o *flamegraphOptions) {
		o.countLabel = label
	}
}

// WithWidth overrides the image width in pixels.
func WithWidth(px int) FlamegraphOption {
	return func(o *flamegraphOptions) {
		if px > 0 {
			o.width = px
		}
	}
}

// frameNode is one node of the merged call tree. value counts the bytes of
// the node and everything below it.
type frameNode struct {
	name     string
	value    int64
	children map[string]*frameNode
}

func (n *frameNode) child(name string) *frameNode {
	if n.children == nil {
		n.children = make(map[string]*frameNode)
	}
	c, ok := n.children[name]
	if !ok {
		c = &frameNode{name: name}
		n.children[name] = c
	}
	return c
}

func (n *frameNode) sorted() []*frameNode {
	out := make([]*frameNode, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (n *frameNode) depth() int {
	max := 0
	for _, c := range n.children {
		if d := c.depth(); d > max {
			max = d
		}
	}
	return max + 1
}

// buildFrameTree merges the report entries into a single tree rooted at a
// synthetic "all" node. Entries are inserted root-first, so the captured
// leaf-first frames are walked backwards.
func (r *Report) buildFrameTree() *frameNode {
	root := &frameNode{name: "all"}
	for _, e := range r.Entries {
		if e.AllocBytes <= 0 {
			continue
		}
		root.value += e.AllocBytes
		node := root
		for i := len(e.Frames) - 1; i >= 0; i-- {
			node = node.child(e.Frames[i].Function)
			node.value += e.AllocBytes
		}
	}
	return root
}

// memPalette returns a fill colour for a frame name. Hue and shade are
// derived from the name hash, in the green/blue range of the standard
// flamegraph memory palette.
func memPalette(name string) string {
	h := xxhash.Sum64String(name)
	r := int((h >> 16) % 31)
	g := 180 + int(h%56)
	b := 50 + int((h>>8)%61)
	return fmt.Sprintf("rgb(%d,%d,%d)", r, g, b)
}

const (
	fgFrameHeight = 16
	fgTextPad     = 3
	fgHeaderSpace = 36
	fgFooterSpace = 12
	fgMinWidth    = 0.5
)

// Flamegraph writes the report as a standalone SVG flamegraph. Only writer
// errors are surfaced; an empty report renders an empty (but valid) graph.
func (r *Report) Flamegraph(w io.Writer, opts ...FlamegraphOption) error {
	o := flamegraphOptions{
		title:      "Heap Allocation Flame Graph",
		countLabel: "bytes",
		width:      1200,
	}
	for _, opt := range opts {
		opt(&o)
	}

	root := r.buildFrameTree()
	height := root.depth()*fgFrameHeight + fgHeaderSpace + fgFooterSpace

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, `<?xml version="1.0" standalone="no"?>`+"\n")
	fmt.Fprintf(bw, `<svg version="1.1" width="%d" height="%d" xmlns="http://www.w3.org/2000/svg">`+"\n", o.width, height)
	fmt.Fprintf(bw, `<rect x="0" y="0" width="%d" height="%d" fill="rgb(250,250,250)"/>`+"\n", o.width, height)
	fmt.Fprintf(bw, `<text x="%d" y="24" text-anchor="middle" font-size="17" font-family="Verdana">%s</text>`+"\n",
		o.width/2, html.EscapeString(o.title))

	if root.value > 0 {
		scale := float64(o.width) / float64(root.value)
		renderFrame(bw, root, 0, 0, scale, height-fgFooterSpace-fgFrameHeight, &o)
	}

	fmt.Fprintf(bw, "</svg>\n")
	return errors.Wrap(bw.Flush(), "writing flamegraph")
}

func renderFrame(w io.Writer, node *frameNode, x float64, level int, scale float64, baseY int, o *flamegraphOptions) {
	width := float64(node.value) * scale
	if width < fgMinWidth {
		return
	}
	y := baseY - level*fgFrameHeight
	name := html.EscapeString(node.name)

	fmt.Fprintf(w, `<g><title>%s (%d %s)</title>`, name, node.value, html.EscapeString(o.countLabel))
	fmt.Fprintf(w, `<rect x="%.1f" y="%d" width="%.1f" height="%d" fill="%s" rx="2" ry="2"/>`,
		x, y, width, fgFrameHeight-1, memPalette(node.name))
	if width > 40 {
		fmt.Fprintf(w, `<text x="%.1f" y="%d" font-size="11" font-family="Verdana">%s</text>`,
			x+fgTextPad, y+fgFrameHeight-5, truncateLabel(name, width))
	}
	fmt.Fprintf(w, "</g>\n")

	childX := x
	for _, c := range node.sorted() {
		renderFrame(w, c, childX, level+1, scale, baseY, o)
		childX += float64(c.value) * scale
	}
}

// truncateLabel trims a frame label to roughly what fits in width pixels.
func truncateLabel(name string, width float64) string {
	max := int(width / 7)
	if len(name) <= max {
		return name
	}
	if max < 4 {
		return ""
	}
	return name[:max-2] + ".."
}
