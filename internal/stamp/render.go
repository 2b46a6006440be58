package stamp

import (
	"fmt"
	"strings"

	"stampdesk/stamp-studio/stamp-studio-backend/internal/stamp/svg"
)

// Render maps cfg to an SVG document. Identical configs produce identical
// trees.
func Render(cfg StampConfig) *svg.Document {
	return RenderLayout(Compose(cfg))
}

// RenderLayout builds the SVG tree for an already composed layout.
func RenderLayout(l *Layout) *svg.Document {
	root := svg.El("svg",
		svg.A("xmlns", svg.Namespace),
		svg.A("xmlns:xlink", svg.XLinkNamespace),
		svg.A("viewBox", fmt.Sprintf("0 0 %s %s", svg.Num(l.Width), svg.Num(l.Height))),
		svg.A("width", l.Width),
		svg.A("height", l.Height),
	)

	defs := svg.El("defs")
	if l.Distress > 0 {
		defs.Append(distressFilter(l.Distress))
	}
	for _, a := range l.Arcs {
		defs.Append(svg.El("path", svg.A("id", a.ID), svg.A("d", a.D()), svg.A("fill", "none")))
	}
	root.Append(defs)

	stamp := svg.El("g", svg.A("id", "stamp"))
	if l.Rotation != 0 {
		stamp.Set("transform", fmt.Sprintf("rotate(%s %s %s)",
			svg.Num(l.Rotation), svg.Num(l.Center.X), svg.Num(l.Center.Y)))
	}
	if l.Opacity < 1 {
		stamp.Set("opacity", svg.Num(l.Opacity))
	}

	shapes := svg.El("g", svg.A("id", "shape"))
	for _, o := range l.Outlines {
		shapes.Append(outlineNode(o))
	}
	for _, s := range l.Stars {
		shapes.Append(starNode(s))
	}

	texts := svg.El("g", svg.A("id", "text"))
	for _, p := range l.Pictures {
		texts.Append(pictureNode(p))
	}
	for _, t := range l.Texts {
		texts.Append(textNode(t))
	}
	for _, ln := range l.Lines {
		texts.Append(svg.El("line",
			svg.A("id", ln.ID),
			svg.A("x1", ln.From.X), svg.A("y1", ln.From.Y),
			svg.A("x2", ln.To.X), svg.A("y2", ln.To.Y),
			svg.A("stroke", ln.Color), svg.A("stroke-width", ln.Width)))
	}

	if l.Distress > 0 {
		ref := "url(#" + DistressFilterID + ")"
		shapes.Set("filter", ref)
		texts.Set("filter", ref)
	}

	stamp.Append(shapes, texts)
	root.Append(stamp)
	return &svg.Document{Root: root, Width: l.Width, Height: l.Height}
}

// Serialize writes doc as a standalone UTF-8 SVG file.
func Serialize(doc *svg.Document) ([]byte, error) {
	out, err := svg.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize stamp: %w", err)
	}
	return out, nil
}

func distressFilter(level float64) *svg.Node {
	f := svg.El("filter",
		svg.A("id", DistressFilterID),
		svg.A("x", "-5%"), svg.A("y", "-5%"),
		svg.A("width", "110%"), svg.A("height", "110%"))
	f.Append(
		svg.El("feTurbulence",
			svg.A("type", "fractalNoise"),
			svg.A("baseFrequency", noiseFrequency),
			svg.A("numOctaves", noiseOctaves),
			svg.A("seed", noiseSeed),
			svg.A("result", "noise")),
		svg.El("feDisplacementMap",
			svg.A("in", "SourceGraphic"),
			svg.A("in2", "noise"),
			svg.A("scale", displacementScale(level)),
			svg.A("xChannelSelector", "R"),
			svg.A("yChannelSelector", "G")),
	)
	return f
}

func outlineNode(o Outline) *svg.Node {
	var n *svg.Node
	switch o.Kind {
	case OutlineCircle:
		n = svg.El("circle", svg.A("cx", o.Center.X), svg.A("cy", o.Center.Y), svg.A("r", o.RX))
	case OutlineEllipse:
		n = svg.El("ellipse", svg.A("cx", o.Center.X), svg.A("cy", o.Center.Y),
			svg.A("rx", o.RX), svg.A("ry", o.RY))
	default:
		n = svg.El("rect", svg.A("x", o.Rect.X), svg.A("y", o.Rect.Y),
			svg.A("width", o.Rect.W), svg.A("height", o.Rect.H))
	}
	n.Set("fill", "none")
	n.Set("stroke", o.Color)
	n.Set("stroke-width", svg.Num(o.Width))
	if len(o.Dash) > 0 {
		parts := make([]string, len(o.Dash))
		for i, d := range o.Dash {
			parts[i] = svg.Num(d)
		}
		n.Set("stroke-dasharray", strings.Join(parts, " "))
	}
	return n
}

func starNode(s Star) *svg.Node {
	pts := s.Points()
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = svg.Num(p.X) + "," + svg.Num(p.Y)
	}
	return svg.El("polygon", svg.A("points", strings.Join(parts, " ")), svg.A("fill", s.Color))
}

func pictureNode(p Picture) *svg.Node {
	return svg.El("image",
		svg.A("id", p.ID),
		svg.A("href", p.Href),
		svg.A("xlink:href", p.Href),
		svg.A("x", p.Box.X), svg.A("y", p.Box.Y),
		svg.A("width", p.Box.W), svg.A("height", p.Box.H),
		svg.A("preserveAspectRatio", "xMidYMid meet"))
}

func textNode(t TextRun) *svg.Node {
	weight := "normal"
	if t.Bold {
		weight = "bold"
	}
	n := svg.El("text",
		svg.A("id", t.ID),
		svg.A("font-family", t.Family),
		svg.A("font-size", t.Size),
		svg.A("font-weight", weight),
		svg.A("fill", t.Color),
		svg.A("letter-spacing", t.Spacing),
		svg.A("text-anchor", "middle"),
	)
	if t.Path == "" {
		n.Set("x", svg.Num(t.At.X))
		n.Set("y", svg.Num(t.At.Y))
		return n.SetText(t.Text)
	}
	ref := "#" + t.Path
	n.Append(svg.El("textPath",
		svg.A("href", ref),
		svg.A("xlink:href", ref),
		svg.A("startOffset", "50%"),
	).SetText(t.Text))
	return n
}
