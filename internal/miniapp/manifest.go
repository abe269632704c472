// Package miniapp builds the Farcaster mini-app manifest and decodes the
// events Farcaster clients post to the app webhook.
package miniapp

import "strings"

// DefaultPublicURL is the production origin of the app.
const DefaultPublicURL = "https://minidict.app"

// AccountAssociation is the signed domain-ownership proof published in the
// manifest.
type AccountAssociation struct {
	Header    string `json:"header" toml:"header"`
	Payload   string `json:"payload" toml:"payload"`
	Signature string `json:"signature" toml:"signature"`
}

// DefaultAssociation is the association signed for minidict.app.
var DefaultAssociation = AccountAssociation{
	Header:    "eyJmaWQiOjEwNDExMzIsInR5cGUiOiJjdXN0b2R5Iiwia2V5IjoiMHg5ODQyN2Q1M0MwYjA2MDk1OGQ0MWRhYTI1ZTI0MTcyOGE4ZTMwOWFkIn0",
	Payload:   "eyJkb21haW4iOiJtaW5pZGljdC5hcHAifQ",
	Signature: "Nvy2a6cY8VHVXQu2OEMnRm6WhSimOKO36+VysaEbQxZmlYV2BztYNQPM3ZrpBzNO8RuoKUbnhn6a9yZRFzQ/cBw=",
}

// Descriptor is the "miniapp" section of the manifest.
type Descriptor struct {
	Version               string   `json:"version"`
	Name                  string   `json:"name"`
	HomeURL               string   `json:"homeUrl"`
	IconURL               string   `json:"iconUrl"`
	SplashImageURL        string   `json:"splashImageUrl"`
	SplashBackgroundColor string   `json:"splashBackgroundColor"`
	WebhookURL            string   `json:"webhookUrl"`
	Subtitle              string   `json:"subtitle"`
	Description           string   `json:"description"`
	ScreenshotURLs        []string `json:"screenshotUrls"`
	PrimaryCategory       string   `json:"primaryCategory"`
	Tags                  []string `json:"tags"`
	HeroImageURL          string   `json:"heroImageUrl"`
	Tagline               string   `json:"tagline"`
	OGTitle               string   `json:"ogTitle"`
	OGDescription         string   `json:"ogDescription"`
	OGImageURL            string   `json:"ogImageUrl"`
	NoIndex               bool     `json:"noindex"`
}

// Manifest is the document served at /.well-known/farcaster.json.
type Manifest struct {
	AccountAssociation AccountAssociation `json:"accountAssociation"`
	MiniApp            Descriptor         `json:"miniapp"`
}

// BuildManifest renders the manifest for publicURL. An empty URL falls back
// to DefaultPublicURL and empty association fields to DefaultAssociation.
func BuildManifest(publicURL string, assoc AccountAssociation) Manifest {
	base := strings.TrimRight(strings.TrimSpace(publicURL), "/")
	if base == "" {
		base = DefaultPublicURL
	}
	if assoc.Header == "" {
		assoc.Header = DefaultAssociation.Header
	}
	if assoc.Payload == "" {
		assoc.Payload = DefaultAssociation.Payload
	}
	if assoc.Signature == "" {
		assoc.Signature = DefaultAssociation.Signature
	}

	logo := base + "/images/minidict-logo.png"

	return Manifest{
		AccountAssociation: assoc,
		MiniApp: Descriptor{
			Version:               "1",
			Name:                  "Minidict",
			HomeURL:               base,
			IconURL:               logo,
			SplashImageURL:        logo,
			SplashBackgroundColor: "#0a0a14",
			WebhookURL:            base + "/api/webhook",
			Subtitle:              "Trade prediction markets",
			Description:           "Trade prediction markets on Polymarket with real-time data. Built for Base and Farcaster.",
			ScreenshotURLs:        []string{},
			PrimaryCategory:       "finance",
			Tags:                  []string{"polymarket", "prediction-markets", "trading", "defi", "base"},
			HeroImageURL:          logo,
			Tagline:               "Trade markets on Base",
			OGTitle:               "Minidict - Polymarket on Base",
			OGDescription:         "Trade prediction markets with real-time data from Polymarket",
			OGImageURL:            logo,
			NoIndex:               false,
		},
	}
}
