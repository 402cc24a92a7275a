package events

// NamedColors maps provider colour names to hex values.
var NamedColors = map[string]string{
	"PALE_BLUE":  "#0284c7",
	"PALE_GREEN": "#059669",
	"MAUVE":      "#c026d3",
	"PALE_RED":   "#e11d48",
	"YELLOW":     "#ca8a04",
	"ORANGE":     "#ea580c",
	"CYAN":       "#0891b2",
	"GRAY":       "#4b5563",
	"BLUE":       "#2563eb",
	"GREEN":      "#16a34a",
	"RED":        "#dc2626",
	"CUSTOM":     "#2563eb",
}

// googleColorIDs maps Google's numeric event colour ids onto the named palette.
var googleColorIDs = map[string]string{
	"1": "PALE_BLUE", "2": "PALE_GREEN", "3": "MAUVE", "4": "PALE_RED",
	"5": "YELLOW", "6": "ORANGE", "7": "CYAN", "8": "GRAY",
	"9": "BLUE", "10": "GREEN", "11": "RED",
}

// NormalizeColorID maps Google numeric colour ids to names; names pass through.
func NormalizeColorID(id string) string {
	if name, ok := googleColorIDs[id]; ok {
		return name
	}
	return id
}

// GoogleColorID maps a named colour back to Google's numeric id, or "" when
// the name has no Google equivalent.
func GoogleColorID(name string) string {
	for id, n := range googleColorIDs {
		if n == name {
			return id
		}
	}
	if _, ok := googleColorIDs[name]; ok {
		return name
	}
	return ""
}

// ResolveColor picks the colour to render: the event's custom colour, then its
// named colour, then the calendar's colour.
func ResolveColor(e Event) string {
	if e.CustomColor != "" {
		return e.CustomColor
	}
	if c, ok := NamedColors[e.ColorID]; ok {
		return c
	}
	return e.CalendarColor
}
