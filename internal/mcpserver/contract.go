package mcpserver

import "fmt"

// DrawingContractURI is the resource the contract is published under.
const DrawingContractURI = "artselect://drawing-contract"

// DrawingContract describes how tool callers should express drawings for a
// canvas of the given size.
func DrawingContract(width, height int) string {
	return fmt.Sprintf(drawingContract, width, height, width, height)
}

const drawingContract = `# ArtSelect Drawing Contract

Every canvas is a fixed %d x %d pixel raster. Drawings are built from strokes
and pictures; nothing is stored as vectors, and there is no undo.

## Coordinates

- Origin is the top-left corner, x grows right, y grows down.
- Units are pixels of the %d x %d canvas. Fractions are allowed.
- Points outside the canvas are clipped, never rejected.

## Strokes

A stroke is an ordered list of points: ` + "`" + `[{"x": 10, "y": 20}, {"x": 80, "y": 20}]` + "`" + `.

1. Consecutive points are joined by straight segments with round caps and joins.
2. A single point leaves a round dot of the brush width.
3. Every stroke is committed as a whole at the brush opacity, so overlapping
   segments of one stroke do not darken each other.
4. Strokes are applied in the order given; later strokes paint over earlier ones.

## Brush

| field   | values                          | default |
|---------|---------------------------------|---------|
| tool    | ` + "`" + `brush` + "`" + ` or ` + "`" + `eraser` + "`" + `            | brush   |
| color   | ` + "`" + `#rgb` + "`" + `, ` + "`" + `#rrggbb` + "`" + `, ` + "`" + `#rrggbbaa` + "`" + ` or an SVG name | black   |
| width   | 0 < width <= 1000               | 10      |
| opacity | 0..1                            | 1       |

Fields are applied in this order: tool preset, color, the color's alpha byte,
explicit opacity, width. The eraser preset is opaque white; choosing it resets
color and opacity but keeps the width.

## Pictures

` + "`" + `composite_image` + "`" + ` scales a picture to cover the whole canvas, keeping its aspect
ratio and cropping the overflow around the centre, then blends it at the given
opacity over what is already there. Accepted formats: JPEG, PNG, GIF, WebP,
BMP, TIFF. Use ` + "`" + `search_images` + "`" + ` to find reference photos.

## Saving

Tools that change pixels save the result immediately. A canvas created without
a drawing has no bitmap and shows the blank placeholder. Titles default to
"Untitled", notes to "No Notes" and categories to "No Category".
`
