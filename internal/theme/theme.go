// Package theme holds the render configuration for generated offer
// documents: colors, printed labels, the annex page and raster settings.
// A Config is built once and passed by value; renderers never mutate it.
package theme

import (
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

type AnnexPlacement string

const (
	AnnexLeading  AnnexPlacement = "leading"
	AnnexBoth     AnnexPlacement = "both"
	AnnexDisabled AnnexPlacement = "none"
)

type Colors struct {
	Primary    string `toml:"primary"`
	Secondary  string `toml:"secondary"`
	Text       string `toml:"text"`
	Background string `toml:"background"`
}

type Labels struct {
	ProductPageLabel  string `toml:"product_page_label"`
	DocumentType      string `toml:"document_type"`
	Salutation        string `toml:"salutation"`
	ImageCaption      string `toml:"image_caption"`
	TechDetailsTitle  string `toml:"tech_details_title"`
	SpecialPriceLabel string `toml:"special_price_label"`
	PriceNote         string `toml:"price_note"`
	ValidityTitle     string `toml:"validity_title"`
	ValidityText      string `toml:"validity_text"`
	FooterNote        string `toml:"footer_note"`
	FooterAddress     string `toml:"footer_address"`
	DateLabel         string `toml:"date_label"`
	RefLabel          string `toml:"ref_label"`

	ProductsTitle     string `toml:"products_title"`
	ColumnNumber      string `toml:"column_number"`
	ColumnName        string `toml:"column_name"`
	ColumnUnit        string `toml:"column_unit"`
	ColumnQuantity    string `toml:"column_quantity"`
	ColumnUnitPrice   string `toml:"column_unit_price"`
	ColumnTotal       string `toml:"column_total"`
	ProductsTotalText string `toml:"products_total"`
}

type Annex struct {
	Placement  AnnexPlacement `toml:"placement"`
	Title      string         `toml:"title"`
	Addressee  []string       `toml:"addressee"`
	Paragraphs []string       `toml:"paragraphs"`
	DateLabel  string         `toml:"date_label"`
	Date       string         `toml:"date"`
	Signature  string         `toml:"signature"`
}

type Raster struct {
	Scale float64 `toml:"scale"`
	DPI   float64 `toml:"dpi"`
}

type Config struct {
	Colors Colors `toml:"colors"`
	Labels Labels `toml:"labels"`
	Annex  Annex  `toml:"annex"`
	Raster Raster `toml:"raster"`
}

func Default() Config {
	return Config{
		Colors: Colors{
			Primary:    "#1d4ed8",
			Secondary:  "#f97316",
			Text:       "#1f2933",
			Background: "#ffffff",
		},
		Labels: Labels{
			ProductPageLabel:  "Pagină produs:",
			DocumentType:      "Ofertă comercială",
			Salutation:        "Stimate Client,",
			ImageCaption:      "Fig 1. Vizualizare produs în showroom",
			TechDetailsTitle:  "Descriere Tehnică Detaliată",
			SpecialPriceLabel: "PRET SPECIAL DE OFERTĂ",
			PriceNote:         "TVA Inclus. Livrare Standard Gratuită.",
			ValidityTitle:     "Condiții de valabilitate:",
			ValidityText:      "Oferta este valabilă în timp ce stocul durează. Prețul include taxa verde. Vă rugăm să ne contactați pentru confirmarea comenzii sau să ne vizitați în showroom.",
			FooterNote:        "Document generat electronic. Nu necesită stampilă.",
			FooterAddress:     "",
			DateLabel:         "Data:",
			RefLabel:          "Ref:",
			ProductsTitle:     "Anexa - Lista produselor ofertate",
			ColumnNumber:      "Nr. crt.",
			ColumnName:        "Denumire produs",
			ColumnUnit:        "U.M.",
			ColumnQuantity:    "Cantitate",
			ColumnUnitPrice:   "Preț unitar fără TVA",
			ColumnTotal:       "Valoare totală fără TVA",
			ProductsTotalText: "TOTAL fără TVA",
		},
		Annex: Annex{
			Placement: AnnexLeading,
			Title:     "FORMULAR DE OFERTA",
			Addressee: []string{"Către", "Domnilor,"},
			Paragraphs: []string{
				"1. Examinând documentaţia de atribuire, subsemnaţii, reprezentanţi ai ofertantului, ne oferim ca, în conformitate cu prevederile şi cerinţele cuprinse în documentaţia mai sus menţionată, să furnizăm produsele pentru suma prezentă în tabelul din anexă, plătibilă după recepţia produselor.",
				"2. Ne angajăm ca, în cazul în care oferta noastră este stabilită câştigătoare, să furnizăm produsele în termen de 5 zile de la comandă.",
				"3. Ne angajăm să menţinem această ofertă valabilă pentru o durată de 30 de zile, şi ea va rămâne obligatorie pentru noi şi poate fi acceptată oricând înainte de expirarea perioadei de valabilitate.",
				"4. Până la încheierea şi semnarea contractului de achiziţie publică această ofertă, împreună cu comunicarea transmisă de dumneavoastră, prin care oferta noastră este stabilită câştigătoare, vor constitui un contract angajant între noi.",
				"5. Precizăm că nu depunem ofertă alternativă.",
				"6. Am înţeles şi consimţim ca, în cazul în care oferta noastră este stabilită ca fiind câştigătoare, să constituim garanţia de bună execuţie în conformitate cu prevederile din documentaţia de atribuire.",
				"7. Înţelegem că nu sunteţi obligaţi să acceptaţi oferta cu cel mai scăzut preţ sau orice altă ofertă pe care o puteţi primi.",
			},
			DateLabel: "Data",
			Signature: "(semnătura), în calitate de reprezentant legal autorizat să semnez oferta pentru şi în numele ofertantului",
		},
		Raster: Raster{Scale: 2, DPI: 96},
	}
}

// Load reads a TOML file over the defaults. An empty path returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("theme: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(blob, &cfg); err != nil {
		return Config{}, fmt.Errorf("theme: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	for name, hex := range map[string]string{
		"primary":    c.Colors.Primary,
		"secondary":  c.Colors.Secondary,
		"text":       c.Colors.Text,
		"background": c.Colors.Background,
	} {
		if _, err := ParseHex(hex); err != nil {
			return fmt.Errorf("theme: color %s: %w", name, err)
		}
	}
	switch c.Annex.Placement {
	case AnnexLeading, AnnexBoth, AnnexDisabled:
	default:
		return fmt.Errorf("theme: unsupported annex placement %q", c.Annex.Placement)
	}
	if c.Raster.Scale <= 0 || c.Raster.DPI <= 0 {
		return fmt.Errorf("theme: raster scale and dpi must be positive")
	}
	return nil
}

func (c Config) LeadingAnnex() bool {
	return c.Annex.Placement == AnnexLeading || c.Annex.Placement == AnnexBoth
}

func (c Config) TrailingAnnex() bool {
	return c.Annex.Placement == AnnexBoth
}

func (c Config) Primary() color.RGBA    { return mustHex(c.Colors.Primary) }
func (c Config) Secondary() color.RGBA  { return mustHex(c.Colors.Secondary) }
func (c Config) Text() color.RGBA       { return mustHex(c.Colors.Text) }
func (c Config) Background() color.RGBA { return mustHex(c.Colors.Background) }

// ParseHex parses #rgb and #rrggbb colors.
func ParseHex(hex string) (color.RGBA, error) {
	s := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", hex)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", hex)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

func mustHex(hex string) color.RGBA {
	c, err := ParseHex(hex)
	if err != nil {
		return color.RGBA{A: 0xff}
	}
	return c
}
