package analysis

// FeatureCollection is a GeoJSON document of analyzed articles.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string     `json:"type"`
	Geometry   Geometry   `json:"geometry"`
	Properties Properties `json:"properties"`
}

// Geometry is always a Point; Coordinates are [longitude, latitude].
type Geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type Properties struct {
	Title       string  `json:"titre"`
	Category    string  `json:"categorie"`
	Importance  float64 `json:"importance"`
	Link        string  `json:"lien"`
	Location    string  `json:"localisation"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
	ImageURL    string  `json:"imageUrl,omitempty"`
	Source      string  `json:"source"`
}

// ToGeoJSON builds one Point feature per article that has both
// coordinates. Articles without a location are left out.
func ToGeoJSON(articles []AnalyzedArticle) FeatureCollection {
	fc := FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
	for _, a := range articles {
		if a.Latitude == nil || a.Longitude == nil {
			continue
		}
		fc.Features = append(fc.Features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: [2]float64{*a.Longitude, *a.Latitude},
			},
			Properties: Properties{
				Title:       a.Title,
				Category:    a.Category,
				Importance:  a.Importance,
				Link:        a.Link,
				Location:    a.Location,
				Date:        a.PubDate,
				Description: a.Summary,
				ImageURL:    a.Image,
				Source:      a.Source,
			},
		})
	}
	return fc
}
