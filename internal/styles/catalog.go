// Package styles holds the catalog of room styles a caller can pick from.
package styles

import (
	"strings"
)

// Style is one selectable decorating style. Value is what callers send and
// what cache keys are built from; Label is the short display name.
type Style struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

const unsplash = "https://images.unsplash.com/"

var catalog = []Style{
	{"Modern", "Modern", "Clean lines, neutral colors, and simplicity.", unsplash + "photo-1600210492486-724fe5c67fb0?auto=format&fit=crop&w=800&q=80"},
	{"Japandi", "Japandi", "A hybrid of Japanese and Scandinavian aesthetics.", unsplash + "photo-1598928506311-c55ded91a20c?auto=format&fit=crop&w=800&q=80"},
	{"Bohemian", "Bohemian", "Eclectic, colorful, and full of life and texture.", unsplash + "photo-1522444195799-478538b28823?auto=format&fit=crop&w=800&q=80"},
	{"Minimalist", "Minimalist", "Less is more. Functional furniture and lack of clutter.", unsplash + "photo-1531835551805-16d864c8d311?auto=format&fit=crop&w=800&q=80"},
	{"Coastal", "Coastal", "Breezy, beachy vibes with light blues and whites.", unsplash + "photo-1520697830682-bbb6e85e2b0b?auto=format&fit=crop&w=800&q=80"},
	{"Industrial", "Industrial", "Raw materials, exposed pipes, and urban feel.", unsplash + "photo-1505693314120-0d443867891c?auto=format&fit=crop&w=800&q=80"},
	{"Biophilic", "Biophilic", "Bringing the outdoors in with plants and natural light.", unsplash + "photo-1584622650111-993a426fbf0a?auto=format&fit=crop&w=800&q=80"},
	{"Mid-Century Modern", "Mid-Century", "Retro vibes from the 50s and 60s.", unsplash + "photo-1556228453-efd6c1ff04f6?auto=format&fit=crop&w=800&q=80"},
	{"Neoclassical", "Neoclassical", "Elegant, timeless, combining luxury with symmetry.", unsplash + "photo-1505692952047-1a78307da8f2?auto=format&fit=crop&w=800&q=80"},
	{"Maximalist", "Maximalist", "Bold colors, patterns, and curated excess.", unsplash + "photo-1551516594-56cb78394645?auto=format&fit=crop&w=800&q=80"},
	{"Farmhouse", "Farmhouse", "Rustic charm, warm woods, and cozy vibes.", unsplash + "photo-1560448204-e02f11c3d0e2?auto=format&fit=crop&w=800&q=80"},
	{"Art Deco", "Art Deco", "Glamorous, geometric, and ornamental.", unsplash + "photo-1565538810643-b5bdb714032a?auto=format&fit=crop&w=800&q=80"},
	{"Scandinavian", "Scandinavian", "Cozy, functional, and warm with plenty of light.", unsplash + "photo-1522771739844-6a9f6d5f14af?auto=format&fit=crop&w=800&q=80"},
	{"Cyberpunk", "Cyberpunk", "Neon lights, high-tech, and futuristic.", unsplash + "photo-1555680202-c86f0e12f086?auto=format&fit=crop&w=800&q=80"},
	{"Gothic", "Gothic", "Dark, dramatic, rich textures and moodiness.", unsplash + "photo-1534595038511-9f219fe0c979?auto=format&fit=crop&w=800&q=80"},
	{"Baroque", "Baroque", "Ornate, opulent, gold accents and drama.", unsplash + "photo-1577083288073-40892c0860a4?auto=format&fit=crop&w=800&q=80"},
	{"Zen", "Zen", "Peaceful, balanced, and natural.", unsplash + "photo-1508807526345-15e9b5f4eaff?auto=format&fit=crop&w=800&q=80"},
	{"Mediterranean", "Mediterranean", "Sun-baked colors, warm textures, and coastal european charm.", unsplash + "photo-1506126613408-eca07ce68773?auto=format&fit=crop&w=800&q=80"},
	{"Rustic", "Rustic", "Natural, aged, organic, and rough-hewn elements.", unsplash + "photo-1510798831971-661eb04b3739?auto=format&fit=crop&w=800&q=80"},
	{"Bauhaus", "Bauhaus", "Functional, abstract, geometric, and artistic.", unsplash + "photo-1513161455079-7dc1de15ef3e?auto=format&fit=crop&w=800&q=80"},
	{"Victorian", "Victorian", "Complex, orderly, ornamented, and classic.", unsplash + "photo-1558603668-6570496b66f8?auto=format&fit=crop&w=800&q=80"},
	{"French Country", "French Country", "Soft colors, toile patterns, and refined rustic accents.", unsplash + "photo-1588854337236-6889d631faa8?auto=format&fit=crop&w=800&q=80"},
	{"Hollywood Regency", "Hollywood Regency", "Glitz, glamour, lacquer, and luxe details.", unsplash + "photo-1551298370-9d3d53740c72?auto=format&fit=crop&w=800&q=80"},
	{"Transitional", "Transitional", "A balanced blend of traditional and modern styles.", unsplash + "photo-1616137466211-f939a420be84?auto=format&fit=crop&w=800&q=80"},
	{"Shabby Chic", "Shabby Chic", "Soft, feminine, distressed, and antique.", unsplash + "photo-1533090481720-856c6e3c1fdc?auto=format&fit=crop&w=800&q=80"},
	{"Southwestern", "Southwestern", "Desert tones, leather, terracotta, and woven textiles.", unsplash + "photo-1562663474-6cbb3eaa4d14?auto=format&fit=crop&w=800&q=80"},
	{"Eclectic", "Eclectic", "A careful gathering of interesting elements from different eras.", unsplash + "photo-1513161455079-7dc1de15ef3e?auto=format&fit=crop&w=800&q=80"},
	{"Tropical", "Tropical", "Lush greenery, natural woods, and vibrant warmth.", unsplash + "photo-1502672260266-1c1ef2d93688?auto=format&fit=crop&w=800&q=80"},
	{"Steampunk", "Steampunk", "Victorian-era industrialism with gears, brass, and dark leather.", unsplash + "photo-1554295405-abb8fd54f153?auto=format&fit=crop&w=1200&q=80"},
	{"Memphis", "Memphis", "Bold pop art, geometric shapes, and bright primary colors.", unsplash + "photo-1513519245088-0e12902e5a38?auto=format&fit=crop&w=800&q=80"},
	{"Brutalism", "Brutalism", "Raw concrete, blocky shapes, and monochromatic gray.", unsplash + "photo-1518112390430-f4ab02e9c2c8?auto=format&fit=crop&w=800&q=80"},
	{"Art Nouveau", "Art Nouveau", "Flowing lines, organic shapes, and floral motifs.", unsplash + "photo-1555529733-0e670560f7e1?auto=format&fit=crop&w=800&q=80"},
}

// All returns a copy of the catalog in display order.
func All() []Style {
	out := make([]Style, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a style by value or label, ignoring case.
func Lookup(name string) (Style, bool) {
	name = strings.TrimSpace(name)
	for _, s := range catalog {
		if strings.EqualFold(s.Value, name) || strings.EqualFold(s.Label, name) {
			return s, true
		}
	}
	return Style{}, false
}

// PromptName is the style as it should read inside a generation prompt.
// Catalog styles carry their description; free-form styles (quiz fusions)
// pass through unchanged.
func PromptName(name string) string {
	s, ok := Lookup(name)
	if !ok {
		return strings.TrimSpace(name)
	}
	return s.Value + " (" + strings.TrimSuffix(s.Description, ".") + ")"
}
