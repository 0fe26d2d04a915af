package export

import (
	"bytes"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"qrauth/codehub/internal/model"
)

// A4 label grid in millimetres.
const (
	pdfMargin   = 10.0
	pdfCols     = 3
	pdfRows     = 3
	pdfCellW    = 63.0
	pdfCellH    = 92.0
	pdfImgSize  = 50.0
	pdfLineH    = 5.0
	pdfTextSize = 7.0
)

// PrintPDF writes an A4 label sheet, nine codes per page.
// Core PDF fonts are Latin-1; characters outside it are replaced and RTL is not applied.
func PrintPDF(w io.Writer, codes []model.QRCode) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	imgOpts := gofpdf.ImageOptions{ImageType: "PNG"}

	if len(codes) == 0 {
		pdf.AddPage()
	}
	for i, c := range codes {
		if i%(pdfCols*pdfRows) == 0 {
			pdf.AddPage()
		}
		x := pdfMargin + float64(i%pdfCols)*pdfCellW
		y := pdfMargin + float64((i/pdfCols)%pdfRows)*pdfCellH
		width := pdfCellW - 4

		png, err := DecodeDataURI(c.RenderedImage)
		if err != nil {
			return fmt.Errorf("code %s: %w", c.ID, err)
		}
		name := c.ID.String()
		pdf.RegisterImageOptionsReader(name, imgOpts, bytes.NewReader(png))

		header := c.HeaderText
		if header == "" {
			header = "Authenticity check"
		}
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetXY(x, y)
		pdf.CellFormat(width, pdfLineH, tr(header), "", 0, "C", false, 0, "")

		pdf.ImageOptions(name, x+(width-pdfImgSize)/2, y+pdfLineH+1, pdfImgSize, pdfImgSize, false, imgOpts, 0, "")

		pdf.SetFont("Courier", "B", 10)
		pdf.SetXY(x, y+pdfLineH+pdfImgSize+2)
		pdf.CellFormat(width, pdfLineH, "#"+c.DisplayNumber(), "", 0, "C", false, 0, "")

		pdf.SetFont("Helvetica", "", pdfTextSize)
		lineY := y + 2*pdfLineH + pdfImgSize + 3
		for _, text := range []string{c.InstructionText, c.WebsiteURL, c.FooterText} {
			if text == "" {
				continue
			}
			pdf.SetXY(x, lineY)
			pdf.CellFormat(width, pdfLineH-1, tr(text), "", 0, "C", false, 0, "")
			lineY += pdfLineH - 1
		}
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("build pdf: %w", err)
	}
	return pdf.Output(w)
}
