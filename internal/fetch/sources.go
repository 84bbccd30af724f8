package fetch

import "github.com/infblueocean/newsmap/internal/feed"

// DefaultSources returns the built-in international feed list used when the
// configuration names none.
func DefaultSources() []feed.Source {
	return []feed.Source{
		{Name: "Le Monde (FR)", URL: "https://www.lemonde.fr/rss/une.xml"},
		{Name: "NYT Asia (EN)", URL: "https://rss.nytimes.com/services/xml/rss/nyt/AsiaPacific.xml"},
		{Name: "Reuters World (EN)", URL: "https://www.reutersagency.com/feed/?best-regions=world&post_type=best"},
		{Name: "BBC World (EN)", URL: "http://feeds.bbci.co.uk/news/world/rss.xml"},
		{Name: "El País (ES)", URL: "https://feeds.elpais.com/mrss-s/pages/ep/site/elpais.com/portada"},
		{Name: "Spiegel (DE)", URL: "https://www.spiegel.de/schlagzeilen/index.rss"},
	}
}
