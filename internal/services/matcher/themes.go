package matcher

// Theme is a domain concept and the words that signal it.
// Multi-word keywords match as a phrase.
type Theme struct {
	Name     string
	Keywords []string
}

// DefaultThemes is the fixed hospitality concept table
var DefaultThemes = []Theme{
	{Name: "pool", Keywords: []string{"pool", "swimming", "swim", "infinity", "poolside", "water", "lap pool", "plunge"}},
	{Name: "bedroom", Keywords: []string{"bedroom", "bed", "suite", "king", "queen", "sleep", "pillow", "guestroom"}},
	{Name: "bathroom", Keywords: []string{"bathroom", "bath", "bathtub", "shower", "vanity", "tub", "ensuite"}},
	{Name: "dining", Keywords: []string{"dining", "restaurant", "breakfast", "dinner", "lunch", "buffet", "meal", "food", "table", "brunch"}},
	{Name: "bar", Keywords: []string{"bar", "cocktail", "cocktails", "drinks", "wine", "lounge", "rooftop bar", "bartender"}},
	{Name: "spa", Keywords: []string{"spa", "massage", "sauna", "wellness", "treatment", "hot tub", "jacuzzi", "steam"}},
	{Name: "gym", Keywords: []string{"gym", "fitness", "workout", "treadmill", "weights", "yoga"}},
	{Name: "lobby", Keywords: []string{"lobby", "reception", "entrance", "check", "concierge", "foyer"}},
	{Name: "exterior", Keywords: []string{"exterior", "facade", "building", "aerial", "drone", "exterior view", "outside", "skyline", "view"}},
	{Name: "beach", Keywords: []string{"beach", "sand", "ocean", "sea", "shore", "waves", "coast", "seaside"}},
	{Name: "garden", Keywords: []string{"garden", "terrace", "patio", "lawn", "courtyard", "flowers", "greenery"}},
	{Name: "kitchen", Keywords: []string{"kitchen", "kitchenette", "cooking", "chef", "stove"}},
	{Name: "conference", Keywords: []string{"conference", "meeting", "boardroom", "event", "events", "ballroom", "wedding"}},
	{Name: "kids", Keywords: []string{"kids", "children", "child", "family", "playground", "kids club"}},
}
