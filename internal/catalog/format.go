package catalog

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.AmericanEnglish)

// FormatAmount renders cents as dollars with digit grouping: 128500 -> "$1,285", 1499 -> "$14.99".
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	if cents%100 == 0 {
		return sign + printer.Sprintf("$%d", cents/100)
	}
	return sign + printer.Sprintf("$%d.%02d", cents/100, cents%100)
}
