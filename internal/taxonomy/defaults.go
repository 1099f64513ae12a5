package taxonomy

// Default returns the built-in news taxonomy. A YAML file overrides it
// entirely when present.
func Default() *Taxonomy {
	return New([]Category{
		{
			Name:          "World News",
			Subcategories: []string{"Africa", "Asia", "Europe", "Middle East", "North America", "South America", "Oceania"},
			Keywords:      []string{"war", "ukraine", "gaza", "nato", "refugees", "treaty"},
		},
		{
			Name:          "Politics & Government",
			Subcategories: []string{"US Politics", "International Politics", "Elections", "Policy & Legislation", "Government Affairs"},
			Keywords:      []string{"election", "president", "congress", "politics", "senate", "parliament"},
		},
		{
			Name:          "Business",
			Subcategories: []string{"Markets", "Corporations & earnings", "Startups & Entrepreneurship", "Economy and Policy"},
			Keywords:      []string{"stock", "market", "economy", "business", "earnings", "inflation"},
		},
		{
			Name:          "Technology",
			Subcategories: []string{"AI & Machine Learning", "Gadgets & Consumer Tech", "Software & Apps", "Cybersecurity", "Hardware & Infrastructure"},
			Keywords:      []string{"tech", "apple", "google", "microsoft", "software", "chip"},
		},
		{
			Name:          "Science & Environment",
			Subcategories: []string{"Space & Astronomy", "Biology", "Physics & Chemistry", "Research & Academia", "Climate & Weather", "Sustainability", "Conservation & Wildlife"},
			Keywords:      []string{"science", "climate", "nasa", "space", "research", "species"},
		},
		{
			Name:          "Health",
			Subcategories: []string{"Public Health", "Medicine & Healthcare", "Fitness & Wellness", "Mental Health"},
			Keywords:      []string{"health", "medical", "covid", "vaccine", "hospital", "disease"},
		},
		{
			Name: "Sports",
			Subcategories: []string{
				"Football (Soccer)", "American Football", "Basketball", "Baseball", "Cricket",
				"Tennis", "F1", "Boxing", "MMA", "Golf", "Ice hockey", "Rugby",
				"Volleyball", "Table Tennis (Ping Pong)", "Athletics",
			},
			Keywords: []string{"game", "season", "championship", "league", "tournament", "coach"},
		},
		{
			Name:          "Arts & Culture",
			Subcategories: []string{"Celebrity News", "Gaming", "Film & TV", "Music", "Literature", "Art & Design", "Fashion"},
			Keywords:      []string{"film", "album", "festival", "museum", "celebrity", "premiere"},
		},
		{
			Name:          "Lifestyle",
			Subcategories: []string{"Travel", "Food & Dining", "Home & Garden", "Relationships & Family", "Hobbies"},
			Keywords:      []string{"travel", "recipe", "restaurant", "garden", "family"},
		},
	})
}
