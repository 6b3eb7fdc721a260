package llm

import "fmt"

func redesignPrompt(style string) string {
	return fmt.Sprintf(`Redesign this room in a %s interior design style.

Keep the architecture exactly as it is: walls, windows, doors, ceiling height, floor plan and camera perspective must not change.
Replace the furniture, materials, textiles, decor and lighting so the room clearly reads as %s.
Produce a photorealistic image.
Do not add any text, captions, logos or watermarks to the image. If the input photo contains a watermark or overlaid text, remove it completely.`,
		style, style)
}

func advicePrompt(style string) string {
	return fmt.Sprintf(`You are an experienced interior designer. Analyze this room photo and explain how to transform it into a %s style.
Return:
- critique: a short honest assessment of the current space
- suggestions: concrete, actionable changes
- colorPalette: 4 to 6 colors that define the target look, each with a name and a #RRGGBB hex code
- furnitureRecommendations: specific furniture pieces to buy`,
		style)
}

const shopPrompt = `Identify the main furniture and decor items visible in this room that a shopper could buy.
For each item return its name, an estimated price in USD, a category, a short search query for finding it online,
and box_2d: its bounding box as [ymin, xmin, ymax, xmax] normalized to 0-1000.
Also give the overall look a catchy title, the closest interior design style and a one-sentence description.`

func describeStylePrompt(style string) string {
	return fmt.Sprintf(`Write a short, inspiring description (2 sentences, no more than 40 words) of the "%s" interior design style for someone who just discovered it is their personal style. Plain text only.`,
		style)
}
