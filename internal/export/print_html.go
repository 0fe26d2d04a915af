package export

import (
	"html/template"
	"io"
	"strings"

	"github.com/Masterminds/sprig/v3"

	"qrauth/codehub/internal/model"
)

const printSheetHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{ .Title }}</title>
<style>
@page { size: A4; margin: 10mm; }
body { font-family: Helvetica, Arial, sans-serif; margin: 0; }
.sheet { display: flex; flex-wrap: wrap; gap: 6mm; }
.label { width: 60mm; padding: 3mm; text-align: center; border: 1px dashed #bbb; page-break-inside: avoid; }
.label img { width: 50mm; height: 50mm; }
.header { font-weight: bold; font-size: 10pt; }
.number { font-family: monospace; font-size: 11pt; letter-spacing: 1px; }
.instruction, .website, .footer { font-size: 8pt; }
</style>
</head>
<body>
<div class="sheet">
{{- range .Codes }}
<div class="label" dir="{{ if .DirectionRTL }}rtl{{ else }}ltr{{ end }}">
<div class="header">{{ .HeaderText | default "Authenticity check" }}</div>
<img src="{{ imageSrc .RenderedImage }}" alt="QR {{ .DisplayNumber }}">
<div class="number">#{{ .DisplayNumber }}</div>
{{- with .InstructionText }}
<div class="instruction">{{ . }}</div>
{{- end }}
{{- with .WebsiteURL }}
<div class="website">{{ . | trimPrefix "https://" | trimPrefix "http://" }}</div>
{{- end }}
{{- with .FooterText }}
<div class="footer">{{ . }}</div>
{{- end }}
</div>
{{- end }}
</div>
</body>
</html>
`

var printSheet = template.Must(
	template.New("print").
		Funcs(sprig.HtmlFuncMap()).
		Funcs(template.FuncMap{"imageSrc": imageSrc}).
		Parse(printSheetHTML),
)

// imageSrc lets stored PNG data URIs through html/template's URL filter.
func imageSrc(uri string) template.URL {
	if !strings.HasPrefix(uri, pngDataURIPrefix) {
		return ""
	}
	return template.URL(uri)
}

// PrintHTML writes a print-ready label sheet for codes.
func PrintHTML(w io.Writer, title string, codes []model.QRCode) error {
	return printSheet.Execute(w, struct {
		Title string
		Codes []model.QRCode
	}{Title: title, Codes: codes})
}
