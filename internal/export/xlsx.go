package export

import (
	"io"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"offerdesk/internal"
)

var productHeaders = []string{
	"offer_no", "company", "offer_reference", "offer_date", "title",
	"item_no", "product_name", "unit", "quantity", "unit_price_no_vat", "total_no_vat",
}

// productsWorkbook lays out one row per product of every offer.
func productsWorkbook(offers []internal.Offer) *excelize.File {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	for i, h := range productHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	r := 1
	for i, offer := range offers {
		for _, p := range offer.Content.Products {
			r++
			set := func(col int, value any) {
				cell, _ := excelize.CoordinatesToCellName(col, r)
				_ = f.SetCellValue(sheet, cell, value)
			}
			set(1, i+1)
			set(2, offer.Metadata.CompanyName)
			set(3, offer.Metadata.OfferReference)
			set(4, offer.Metadata.OfferDate)
			set(5, offer.Content.Title)
			set(6, p.ItemNumber)
			set(7, p.ProductName)
			set(8, p.UnitOfMeasurement)
			set(9, p.Quantity)
			set(10, p.UnitPriceNoVAT)
			set(11, p.TotalValueNoVAT)
		}
	}
	return f
}

func ExportProductsToXLSX(offers []internal.Offer, outputPath string) error {
	f := productsWorkbook(offers)
	defer f.Close()

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

// WriteProductsXLSX streams the same workbook ExportProductsToXLSX saves.
func WriteProductsXLSX(offers []internal.Offer, w io.Writer) error {
	f := productsWorkbook(offers)
	defer f.Close()
	return f.Write(w)
}
